package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/services"
	"github.com/desertthunder/acura/internal/shared"
)

// step is the next unit of work for the pipeline driver.
type step interface{ isStep() }

type (
	generateQueryStep struct{}
	routeStep         struct{}
	reuseStep         struct{ candidates []models.ScoredTrack }
	searchCatalogStep struct{}
	matchPlaylistStep struct{ playlists []services.CatalogPlaylist }
	verifyTracksStep  struct {
		playlist services.CatalogPlaylist
		tracks   []services.CatalogTrack
	}
	persistStep struct{ verified []models.VerifiedTrack }
	doneStep    struct{ added int }
)

func (generateQueryStep) isStep() {}
func (routeStep) isStep()         {}
func (reuseStep) isStep()         {}
func (searchCatalogStep) isStep() {}
func (matchPlaylistStep) isStep() {}
func (verifyTracksStep) isStep()  {}
func (persistStep) isStep()       {}
func (doneStep) isStep()          {}

// run is the state of one curation run.
type run struct {
	*Engine
	sub      *models.Subscriber
	prompt   models.Prompt
	progress chan<- ProgressUpdate
	logger   *log.Logger

	query     string
	retries   int
	errorInfo string
}

func (e *Engine) newRun(sub *models.Subscriber, prompt models.Prompt, progress chan<- ProgressUpdate, logger *log.Logger) *run {
	return &run{Engine: e, sub: sub, prompt: prompt, progress: progress, logger: logger}
}

// drive dispatches steps until the run is done or fails.
func (r *run) drive(ctx context.Context) (int, error) {
	var next step = generateQueryStep{}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var err error
		switch s := next.(type) {
		case generateQueryStep:
			next = r.generateQuery(ctx)
		case routeStep:
			next, err = r.route(ctx)
		case reuseStep:
			next, err = r.reuse(ctx, s)
		case searchCatalogStep:
			next, err = r.searchCatalog(ctx)
		case matchPlaylistStep:
			next, err = r.matchPlaylist(ctx, s)
		case verifyTracksStep:
			next, err = r.verifyTracks(ctx, s)
		case persistStep:
			next, err = r.persist(ctx, s)
		case doneStep:
			return s.added, nil
		default:
			return 0, fmt.Errorf("unknown pipeline step %T", s)
		}
		if err != nil {
			return 0, err
		}
	}
}

// noResult records why a loop produced nothing and starts over.
func (r *run) noResult(format string, args ...any) step {
	r.retries++
	r.errorInfo = fmt.Sprintf(format, args...)
	r.logger.Debug("no result", "retries", r.retries, "reason", r.errorInfo)
	return generateQueryStep{}
}

func (r *run) generateQuery(ctx context.Context) step {
	if r.retries >= r.settings.MaxRetries {
		r.logger.Info("retry budget spent", "retries", r.retries, "last_error", r.errorInfo)
		return doneStep{}
	}

	r.sendProgress(r.progress, generateQueryUpdate(r.retries+1, r.settings.MaxRetries))
	query, err := r.Queries.GenerateQuery(ctx, r.prompt.Text, r.errorInfo)
	if err != nil {
		return r.noResult("query generation failed: %v", err)
	}

	r.query = query
	r.logger.Debug("generated query", "query", query)
	return routeStep{}
}

func (r *run) route(ctx context.Context) (step, error) {
	result, err := r.Route(ctx, r.sub.ID, r.query)
	if err != nil {
		return nil, err
	}

	r.sendProgress(r.progress, routeUpdate(r.query, result.Decision, result.Similar, result.Recent))
	if result.Decision == Reuse {
		return reuseStep{candidates: result.Candidates}, nil
	}
	return searchCatalogStep{}, nil
}

func (r *run) reuse(ctx context.Context, s reuseStep) (step, error) {
	added, err := r.Reuse(ctx, r.sub.ID, s.candidates, r.progress)
	if err != nil {
		return nil, err
	}
	return doneStep{added: added}, nil
}

func (r *run) searchCatalog(ctx context.Context) (step, error) {
	r.sendProgress(r.progress, searchCatalogUpdate(r.query))

	page, err := r.Catalog.SearchPlaylists(ctx, r.query, r.settings.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("catalog search for %q: %w", r.query, err)
	}
	if len(page.Items) == 0 {
		return r.noResult("no playlists found for query %q", r.query), nil
	}
	return matchPlaylistStep{playlists: page.Items}, nil
}

func (r *run) matchPlaylist(ctx context.Context, s matchPlaylistStep) (step, error) {
	for i, pl := range s.playlists {
		r.sendProgress(r.progress, matchPlaylistUpdate(i+1, len(s.playlists), pl))

		ok, err := r.Classifier.IsRelevant(ctx, r.query, pl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("relevance check failed", "playlist", pl.ID, "err", err)
			continue
		}
		if !ok {
			continue
		}

		tracks, err := r.Catalog.PlaylistTracks(ctx, pl.ID)
		if err != nil {
			return nil, fmt.Errorf("tracks of playlist %s: %w", pl.ID, err)
		}

		clean := make([]services.CatalogTrack, 0, len(tracks))
		for _, t := range tracks {
			if !t.Explicit {
				clean = append(clean, t)
			}
		}
		if len(clean) == 0 {
			return r.noResult("playlist %q for query %q has no usable tracks", pl.Name, r.query), nil
		}

		r.sendProgress(r.progress, matchedPlaylistUpdate(pl, len(clean)))
		return verifyTracksStep{playlist: pl, tracks: clean}, nil
	}

	return r.noResult("none of %d playlists matched query %q", len(s.playlists), r.query), nil
}

func (r *run) verifyTracks(ctx context.Context, s verifyTracksStep) (step, error) {
	verified := make([]models.VerifiedTrack, 0, len(s.tracks))
	for i, t := range s.tracks {
		v, ok, err := r.verify(ctx, t)
		if err != nil {
			return nil, err
		}
		r.sendProgress(r.progress, verifyTrackUpdate(i+1, len(s.tracks), t, ok))
		if ok {
			verified = append(verified, v)
		}
	}

	if len(verified) == 0 {
		return r.noResult("no tracks of playlist %q could be verified as videos", s.playlist.Name), nil
	}
	return persistStep{verified: verified}, nil
}

// verify finds the first playable video whose title is close enough to the track.
func (r *run) verify(ctx context.Context, t services.CatalogTrack) (models.VerifiedTrack, bool, error) {
	artist := t.PrimaryArtist()
	results, err := r.Videos.SearchVideos(ctx, strings.TrimSpace(t.Title+" "+artist))
	if err != nil {
		return models.VerifiedTrack{}, false, fmt.Errorf("verifying %q: %w", t.Title, err)
	}

	key := shared.TrackKey(t.Title, artist)
	for _, res := range results {
		if !services.IsPlayableVideo(res.URL) {
			continue
		}
		if shared.Similarity(key, strings.ToLower(res.Title)) <= r.settings.MatchThreshold {
			continue
		}

		image := t.Image
		if image == "" {
			image = res.Thumbnail
		}
		return models.VerifiedTrack{
			Title:    t.Title,
			Artist:   artist,
			URI:      res.URL,
			Duration: t.Duration,
			Explicit: t.Explicit,
			Image:    image,
		}, true, nil
	}
	return models.VerifiedTrack{}, false, nil
}

func (r *run) persist(ctx context.Context, s persistStep) (step, error) {
	pl, err := r.Store.CreateOrGetPlaylist(ctx, r.sub.ID, r.today())
	if err != nil {
		return nil, fmt.Errorf("failed to open playlist: %w", err)
	}

	var (
		added int
		errs  []error
	)
	for i, v := range s.verified {
		r.sendProgress(r.progress, persistUpdate(i+1, len(s.verified), v))
		if err := r.persistOne(ctx, pl.ID, v); err != nil {
			errs = append(errs, fmt.Errorf("%s - %s: %w", v.Artist, v.Title, err))
			continue
		}
		added++
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("some tracks were not saved", "failed", len(errs), "saved", added, "err", err)
	}
	return doneStep{added: added}, nil
}

// persistOne stores a verified track with its embedding and suggests it.
//
// A missing embedding only keeps the track out of future reuse, so it does not block the suggestion.
func (r *run) persistOne(ctx context.Context, playlistID int64, v models.VerifiedTrack) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	track, err := r.Store.CreateTrack(ctx, v)
	if err != nil {
		return err
	}

	embedding, err := r.Embedder.Embed(ctx, services.TrackEmbeddingText(r.query, track.Title, track.Artist))
	if err == nil {
		err = r.Store.SetTrackEmbedding(ctx, track.ID, embedding)
	}
	if err != nil {
		r.logger.Warn("track embedding not stored", "track", track.ID, "err", err)
	}

	_, err = r.Store.AddSuggestion(ctx, playlistID, track.ID, r.now())
	return err
}
