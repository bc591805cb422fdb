package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const embeddingKeyPrefix = "acura:embedding:"

// EmbeddingCache stores embeddings by key.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, v []float32) error
}

// RedisEmbeddingCache keeps embeddings in Redis as JSON with a TTL.
type RedisEmbeddingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisEmbeddingCache connects to the Redis instance at url.
func NewRedisEmbeddingCache(ctx context.Context, url string, ttl time.Duration) (*RedisEmbeddingCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisEmbeddingCache{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, embeddingKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return v, true, nil
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, key string, v []float32) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	return c.rdb.Set(ctx, embeddingKeyPrefix+key, raw, c.ttl).Err()
}

// Close closes the Redis client.
func (c *RedisEmbeddingCache) Close() error {
	return c.rdb.Close()
}
