package repositories

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

//go:embed schema.sql
var postgresSchema string

// PostgresStore implements [models.Store] over a pgx pool with pgvector similarity search.
//
// Every call borrows its own pooled connection, so concurrent pipelines never share a session.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ models.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the pgvector extension, tables and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range shared.SplitStatements(postgresSchema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w\nStatement: %s", err, stmt)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSubscriber(ctx context.Context, license, note string) (*models.Subscriber, error) {
	license = strings.TrimSpace(license)
	if license == "" {
		return nil, fmt.Errorf("%w: license is required", shared.ErrInvalidInput)
	}

	var sub models.Subscriber
	err := s.pool.QueryRow(ctx,
		`INSERT INTO subscribers (license, note) VALUES ($1, $2) RETURNING id, license, created_at`,
		license, nullString(note),
	).Scan(&sub.ID, &sub.License, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscriber: %w", err)
	}
	sub.Note = note
	return &sub, nil
}

func (s *PostgresStore) SubscriberByLicense(ctx context.Context, license string) (*models.Subscriber, error) {
	var (
		sub  models.Subscriber
		note *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, license, created_at, note FROM subscribers WHERE license = $1`, license,
	).Scan(&sub.ID, &sub.License, &sub.CreatedAt, &note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to scan subscriber: %w", err)
	}
	if note != nil {
		sub.Note = *note
	}
	return &sub, nil
}

func (s *PostgresStore) AddPrompt(ctx context.Context, subscriberID int64, text, activeWhen string) (*models.Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: prompt text is required", shared.ErrInvalidInput)
	}

	p := models.Prompt{SubscriberID: subscriberID, Text: text, ActiveWhen: activeWhen}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO prompts (sid, prompt, active_when) VALUES ($1, $2, $3) RETURNING id`,
		subscriberID, text, nullString(activeWhen),
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert prompt: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) PromptsBySubscriber(ctx context.Context, subscriberID int64) ([]models.Prompt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sid, prompt, COALESCE(active_when, '') FROM prompts WHERE sid = $1 ORDER BY id`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.SubscriberID, &p.Text, &p.ActiveWhen); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// CreateOrGetPlaylist relies on the no-op DO UPDATE so RETURNING yields the row whether or not it was inserted.
func (s *PostgresStore) CreateOrGetPlaylist(ctx context.Context, subscriberID int64, day time.Time) (*models.Playlist, error) {
	p := models.Playlist{SubscriberID: subscriberID}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO playlists (sid, created_at) VALUES ($1, $2::date)
		ON CONFLICT (sid, created_at) DO UPDATE SET sid = EXCLUDED.sid
		RETURNING id, created_at`,
		subscriberID, models.DayKey(day),
	).Scan(&p.ID, &p.Day)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert playlist: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) CreateTrack(ctx context.Context, v models.VerifiedTrack) (*models.Track, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	var (
		t     models.Track
		image *string
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tracks (title, artist, duration, uri, explicit, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (title, artist) DO UPDATE SET title = EXCLUDED.title
		RETURNING id, title, artist, duration, uri, explicit, image`,
		v.Title, v.Artist, v.Duration, v.URI, v.Explicit, nullString(v.Image),
	).Scan(&t.ID, &t.Title, &t.Artist, &t.Duration, &t.URI, &t.Explicit, &image)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert track: %w", err)
	}
	if image != nil {
		t.Image = *image
	}
	return &t, nil
}

func (s *PostgresStore) SetTrackEmbedding(ctx context.Context, trackID int64, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracks SET embedding = $1::vector WHERE id = $2`,
		pgvector.NewVector(embedding), trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", shared.ErrTrackNotFound, trackID)
	}
	return nil
}

func (s *PostgresStore) SimilarTracks(ctx context.Context, embedding []float32, maxDistance float64) ([]models.ScoredTrack, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, artist, duration, uri, explicit, COALESCE(image, ''), COALESCE(genres, '{}'),
		       embedding <=> $1::vector AS distance
		FROM tracks
		WHERE embedding IS NOT NULL AND embedding <=> $1::vector < $2
		ORDER BY distance`,
		pgvector.NewVector(embedding), maxDistance,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar tracks: %w", err)
	}
	defer rows.Close()

	var scored []models.ScoredTrack
	for rows.Next() {
		var st models.ScoredTrack
		err := rows.Scan(&st.ID, &st.Title, &st.Artist, &st.Duration, &st.URI, &st.Explicit, &st.Image, &st.Genres, &st.Distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		scored = append(scored, st)
	}
	return scored, rows.Err()
}

func (s *PostgresStore) AddSuggestion(ctx context.Context, playlistID, trackID int64, at time.Time) (*models.Suggestion, error) {
	sg := models.Suggestion{PlaylistID: playlistID, TrackID: trackID, AddedAt: at.UTC()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO suggestions (pid, tid, added_at) VALUES ($1, $2, $3) RETURNING id`,
		playlistID, trackID, sg.AddedAt,
	).Scan(&sg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return &sg, nil
}

func (s *PostgresStore) RecentlySuggested(ctx context.Context, subscriberID int64, since time.Time) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT s.tid
		FROM suggestions s
		JOIN playlists p ON p.id = s.pid
		WHERE p.sid = $1 AND s.added_at >= $2`,
		subscriberID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent suggestions: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Tracklist(ctx context.Context, subscriberID int64, day time.Time) ([]models.TracklistEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.added_at, t.id, t.title, t.artist, t.duration, t.uri, t.explicit, COALESCE(t.image, '')
		FROM suggestions s
		JOIN playlists p ON p.id = s.pid
		JOIN tracks t ON t.id = s.tid
		WHERE p.sid = $1 AND p.created_at = $2::date AND NOT s.consumed
		ORDER BY s.added_at, s.id`,
		subscriberID, models.DayKey(day),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracklist: %w", err)
	}
	defer rows.Close()

	entries := []models.TracklistEntry{}
	for rows.Next() {
		var e models.TracklistEntry
		err := rows.Scan(&e.SuggestionID, &e.AddedAt,
			&e.Track.ID, &e.Track.Title, &e.Track.Artist, &e.Track.Duration, &e.Track.URI, &e.Track.Explicit, &e.Track.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracklist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) SetPlayback(ctx context.Context, subscriberID, suggestionID int64, at time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE suggestions SET consumed = true WHERE id = $1 AND pid IN (SELECT id FROM playlists WHERE sid = $2)`,
			suggestionID, subscriberID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark suggestion consumed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", shared.ErrSuggestionNotFound, suggestionID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO playback (sid, suggestion_id, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (sid) DO UPDATE SET suggestion_id = EXCLUDED.suggestion_id, updated_at = EXCLUDED.updated_at`,
			subscriberID, suggestionID, at,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert playback: %w", err)
		}
		return nil
	})
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
