package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
)

// TrackRepository persists verified tracks and their embeddings.
//
// (title, artist) is unique. [TrackRepository.Create] resolves duplicates to the existing row.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts the track unless a row with the same title and artist exists, and returns the stored row.
func (r *TrackRepository) Create(ctx context.Context, v models.VerifiedTrack) (*models.Track, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO tracks (title, artist, duration, uri, explicit, image)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (title, artist) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, v.Title, v.Artist, v.Duration, v.URI, v.Explicit, nullString(v.Image)); err != nil {
		return nil, fmt.Errorf("failed to insert track: %w", err)
	}

	return r.GetByTitleArtist(ctx, v.Title, v.Artist)
}

// Get retrieves a track by id.
func (r *TrackRepository) Get(ctx context.Context, id int64) (*models.Track, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectTrack+` WHERE id = ?`, id))
}

// GetByTitleArtist retrieves a track by its natural key.
func (r *TrackRepository) GetByTitleArtist(ctx context.Context, title, artist string) (*models.Track, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectTrack+` WHERE title = ? AND artist = ?`, title, artist))
}

// SetEmbedding stores the track's embedding vector.
func (r *TrackRepository) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	encoded, err := encodeVector(embedding)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE tracks SET embedding = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrTrackNotFound, id)
	}
	return nil
}

// Similar returns tracks whose cosine distance to embedding is below maxDistance, closest first.
//
// SQLite has no vector index, so every embedded track is ranked in process.
func (r *TrackRepository) Similar(ctx context.Context, embedding []float32, maxDistance float64) ([]models.ScoredTrack, error) {
	rows, err := r.db.QueryContext(ctx, selectTrack+` WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var scored []models.ScoredTrack
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		d := CosineDistance(embedding, track.Embedding)
		if d < maxDistance {
			scored = append(scored, models.ScoredTrack{Track: *track, Distance: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracks: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	return scored, nil
}

const selectTrack = `SELECT id, title, artist, duration, uri, explicit, image, embedding, genres FROM tracks`

type scanner interface {
	Scan(dest ...any) error
}

func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	track, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	return track, err
}

func (r *TrackRepository) scanRow(row scanner) (*models.Track, error) {
	var (
		t                       models.Track
		image, embedded, genres sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.Duration, &t.URI, &t.Explicit, &image, &embedded, &genres); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	t.Image = image.String
	t.Genres = decodeGenres(genres.String)
	if embedded.Valid {
		v, err := decodeVector(embedded.String)
		if err != nil {
			return nil, err
		}
		t.Embedding = v
	}
	return &t, nil
}
