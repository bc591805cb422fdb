package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/queue"
	"github.com/desertthunder/acura/internal/repositories"
	"github.com/desertthunder/acura/internal/server"
	"github.com/desertthunder/acura/internal/services"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/desertthunder/acura/internal/tasks"
)

func noop() {}

// openStore returns the injected store or opens one for the configured driver.
func (r *Runner) openStore(ctx context.Context) (models.Store, func(), error) {
	if r.store != nil {
		return r.store, noop, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, nil, err
	}

	switch r.config.Database.Driver {
	case "postgres":
		pool, err := shared.NewPool(ctx, r.config.Database.URL, r.config.Database.MaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		store := repositories.NewPostgresStore(pool)
		return store, func() { store.Close() }, nil
	default:
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		store := repositories.NewSQLiteStore(db)
		return store, func() { store.Close() }, nil
	}
}

// buildEngine wires the catalog, video search, LLM and embedder clients into an engine.
func (r *Runner) buildEngine(ctx context.Context, store models.Store) (*tasks.Engine, func(), error) {
	cfg := r.config
	logger := r.logger.WithPrefix("curate")

	retryOpts := []services.RetryOption{
		services.WithMaxRetries(cfg.HTTP.MaxRetries),
		services.WithBaseBackoff(cfg.HTTP.BaseBackoff.Duration),
	}

	catalog, err := services.NewSpotifyCatalog(cfg.Credentials.Spotify, &http.Client{Timeout: cfg.HTTP.Timeout.Duration}, logger, retryOpts...)
	if err != nil {
		return nil, nil, err
	}

	searchClient := services.NewRetryClient(
		&http.Client{Timeout: cfg.HTTP.Timeout.Duration},
		append(retryOpts, services.WithRateLimit(cfg.HTTP.SearchRate), services.WithRetryLogger(logger))...,
	)
	videos, err := services.NewBraveSearch(cfg.Credentials.Brave, searchClient, cfg.Curation.VideoResults,
		services.BreakerSettings{Trips: cfg.HTTP.BreakerTrips, Cooldown: cfg.HTTP.BreakerWindow.Duration}, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Credentials.OpenAI.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: openai api_key is required", shared.ErrMissingCredentials)
	}
	client := services.NewOpenAIClient(cfg.Credentials.OpenAI, &http.Client{Timeout: cfg.HTTP.Timeout.Duration})
	llm := services.NewLLM(client, cfg.LLM, logger)

	var embedder services.Embedder = services.NewOpenAIEmbedder(client, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDimensions)
	cleanup := noop
	if cfg.Cache.RedisURL != "" {
		cache, err := services.NewRedisEmbeddingCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL.Duration)
		if err != nil {
			logger.Warn("embedding cache unavailable, continuing without it", "err", err)
		} else {
			embedder = services.NewCachedEmbedder(embedder, cache, logger)
			cleanup = func() { cache.Close() }
		}
	}

	engine := tasks.NewEngine(tasks.Dependencies{
		Store:      store,
		Catalog:    catalog,
		Videos:     videos,
		Queries:    llm,
		Classifier: llm,
		Embedder:   embedder,
	}, tasks.SettingsFromConfig(cfg.Curation),
		tasks.WithLocation(cfg.Curation.Location()),
		tasks.WithLogger(logger),
	)
	return engine, cleanup, nil
}

// curatorFor returns the injected curator or a freshly wired engine.
func (r *Runner) curatorFor(ctx context.Context, store models.Store) (tasks.Curator, func(), error) {
	if r.curator != nil {
		return r.curator, noop, nil
	}
	return r.buildEngine(ctx, store)
}

// openPublisher returns the injected publisher or connects to the queue.
func (r *Runner) openPublisher(ctx context.Context) (server.Publisher, func(), error) {
	if r.publisher != nil {
		return r.publisher, noop, nil
	}

	stream, err := r.openStream(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stream, func() { stream.Close() }, nil
}

func (r *Runner) openStream(ctx context.Context) (*queue.Stream, error) {
	stream, err := queue.Connect(r.config.Queue, r.logger.WithPrefix("queue"))
	if err != nil {
		return nil, err
	}
	if _, err := stream.EnsureStream(ctx); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}
