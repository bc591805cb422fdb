package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/services"
)

// Decision is the outcome of routing a query.
type Decision int

const (
	Discover Decision = iota
	Reuse
)

func (d Decision) String() string {
	if d == Reuse {
		return "reuse"
	}
	return "discover"
}

// Decide picks reuse when the similar pool is large enough and mostly fresh.
//
// similar is |S| and recent is |S ∩ R|.
func Decide(similar, recent int, s Settings) Decision {
	if similar == 0 || similar < s.MinPoolSize {
		return Discover
	}
	if float64(recent)/float64(similar) > s.MaxReuseRatio {
		return Discover
	}
	return Reuse
}

// RouteResult is what [Engine.Route] found for a query.
type RouteResult struct {
	Decision   Decision
	Similar    int                  // |S|
	Recent     int                  // |S ∩ R|
	Candidates []models.ScoredTrack // S \ R, ascending by distance
}

// Route compares the query with stored tracks and decides between reuse and discovery.
func (e *Engine) Route(ctx context.Context, subscriberID int64, query string) (*RouteResult, error) {
	embedding, err := e.Embedder.Embed(ctx, services.QueryEmbeddingText(query))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	similar, err := e.Store.SimilarTracks(ctx, embedding, e.settings.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find similar tracks: %w", err)
	}

	recent, err := e.Store.RecentlySuggested(ctx, subscriberID, e.now().Add(-e.settings.History))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent suggestions: %w", err)
	}

	result := &RouteResult{Similar: len(similar)}
	for _, t := range similar {
		if _, seen := recent[t.ID]; seen {
			result.Recent++
			continue
		}
		result.Candidates = append(result.Candidates, t)
	}
	result.Decision = Decide(result.Similar, result.Recent, e.settings)
	return result, nil
}

// Reuse attaches candidates to today's playlist and returns how many were added.
//
// Failures on single tracks are logged and skipped.
func (e *Engine) Reuse(ctx context.Context, subscriberID int64, candidates []models.ScoredTrack, progress chan<- ProgressUpdate) (int, error) {
	pl, err := e.Store.CreateOrGetPlaylist(ctx, subscriberID, e.today())
	if err != nil {
		return 0, fmt.Errorf("failed to open playlist: %w", err)
	}

	var (
		added int
		errs  []error
	)
	for i, c := range candidates {
		e.sendProgress(progress, reuseUpdate(i+1, len(candidates), &c.Track))
		if _, err := e.Store.AddSuggestion(ctx, pl.ID, c.ID, e.now()); err != nil {
			errs = append(errs, fmt.Errorf("track %d: %w", c.ID, err))
			continue
		}
		added++
	}

	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("some tracks could not be reused", "subscriber", subscriberID, "failed", len(errs), "err", err)
	}
	return added, nil
}
