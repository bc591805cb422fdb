// package tasks implements curation runs for subscribers.
//
// The core abstraction is Engine, which routes a generated query to reuse or discovery
// and reports progress over a channel for non-blocking status reporting to the CLI.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/services"
	"github.com/desertthunder/acura/internal/shared"
)

// Settings are the tunables of a curation run.
type Settings struct {
	MaxRetries          int           // No-result loops before giving up
	SimilarityThreshold float64       // Max cosine distance for a stored track to count as similar
	History             time.Duration // Window in which suggestions count as recent
	MinPoolSize         int           // Similar tracks needed before reuse is considered
	MaxReuseRatio       float64       // Max share of similar tracks already suggested recently
	MatchThreshold      float64       // Min title similarity for a video to verify a track
	SearchLimit         int           // Playlists requested per catalog search
}

// SettingsFromConfig converts the curation config section.
func SettingsFromConfig(c shared.CurationConfig) Settings {
	return Settings{
		MaxRetries:          c.MaxRetries,
		SimilarityThreshold: c.SimilarityThreshold,
		History:             time.Duration(c.HistoryHours) * time.Hour,
		MinPoolSize:         c.MinPoolSize,
		MaxReuseRatio:       c.MaxReuseRatio,
		MatchThreshold:      c.MatchThreshold,
		SearchLimit:         c.SearchLimit,
	}
}

// DefaultSettings mirrors the defaults of the curation config section.
func DefaultSettings() Settings {
	return SettingsFromConfig(shared.DefaultConfig().Curation)
}

// Dependencies are the clients an [Engine] works with.
type Dependencies struct {
	Store      models.Store
	Catalog    services.Catalog
	Videos     services.VideoSearcher
	Queries    services.QueryGenerator
	Classifier services.RelevanceClassifier
	Embedder   services.Embedder
}

// Curator runs curation for a single subscriber and reports how many tracks were added.
type Curator interface {
	Curate(ctx context.Context, sub *models.Subscriber, progress chan<- ProgressUpdate) (int, error)
}

// Engine implements [Curator].
type Engine struct {
	Dependencies
	settings Settings
	location *time.Location
	now      func() time.Time
	logger   *log.Logger
}

// Option configures an [Engine].
type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone that decides which calendar day a playlist belongs to.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine with the provided clients.
func NewEngine(deps Dependencies, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		Dependencies: deps,
		settings:     settings,
		location:     time.UTC,
		now:          time.Now,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// today returns the playlist day for the current time.
func (e *Engine) today() time.Time {
	return models.Day(e.now(), e.location)
}

// Curate runs the pipeline with the subscriber's first prompt.
func (e *Engine) Curate(ctx context.Context, sub *models.Subscriber, progress chan<- ProgressUpdate) (int, error) {
	if sub == nil {
		return 0, fmt.Errorf("%w: subscriber is required", shared.ErrInvalidInput)
	}

	prompts, err := e.Store.PromptsBySubscriber(ctx, sub.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load prompts: %w", err)
	}
	if len(prompts) == 0 {
		return 0, fmt.Errorf("%w: subscriber %d", shared.ErrPromptNotFound, sub.ID)
	}

	logger := shared.WithLogger(e.logger, "run", shared.GenerateID()[:8], "subscriber", sub.ID)
	added, err := e.newRun(sub, prompts[0], progress, logger).drive(ctx)
	if err != nil {
		return 0, err
	}

	e.sendProgress(progress, finishedUpdate(added))
	logger.Info("curation finished", "added", added)
	return added, nil
}
