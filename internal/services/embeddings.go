package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements [Embedder] with the embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIEmbedder creates an embedder; an empty model selects text-embedding-3-large.
func NewOpenAIEmbedder(client *openai.Client, model string, dimensions int) *OpenAIEmbedder {
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = openai.LargeEmbedding3
	}
	return &OpenAIEmbedder{client: client, model: m, dimensions: dimensions}
}

// Fingerprint identifies the model and vector size, so cached vectors never cross configurations.
func (e *OpenAIEmbedder) Fingerprint() string {
	return fmt.Sprintf("%s:%d", e.model, e.dimensions)
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty response", shared.ErrEmbedding)
	}
	if e.dimensions > 0 && len(resp.Data[0].Embedding) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", shared.ErrEmbedding, len(resp.Data[0].Embedding), e.dimensions)
	}
	return resp.Data[0].Embedding, nil
}

// CachedEmbedder memoizes another [Embedder] in an [EmbeddingCache].
//
// Cache failures are logged and never fail the embedding.
type CachedEmbedder struct {
	next      Embedder
	cache     EmbeddingCache
	namespace string
	logger    *log.Logger
}

// NewCachedEmbedder wraps next with cache. Keys include next's Fingerprint when it has one.
func NewCachedEmbedder(next Embedder, cache EmbeddingCache, logger *log.Logger) *CachedEmbedder {
	if logger == nil {
		logger = log.Default()
	}
	var namespace string
	if f, ok := next.(interface{ Fingerprint() string }); ok {
		namespace = f.Fingerprint()
	}
	return &CachedEmbedder{next: next, cache: cache, namespace: namespace, logger: logger}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(c.namespace, text)

	v, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "err", err)
	} else if ok {
		return v, nil
	}

	v, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, v); err != nil {
		c.logger.Warn("embedding cache write failed", "err", err)
	}
	return v, nil
}

func embeddingKey(namespace, text string) string {
	sum := sha256.Sum256([]byte(namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
