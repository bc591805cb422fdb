package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
)

// PlaylistRepository manages the one-per-day playlists of each subscriber.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// CreateOrGet returns the subscriber's playlist for day, creating it on first use.
//
// The insert ignores UNIQUE(sid, created_at) conflicts, so concurrent callers all read back the same row.
func (r *PlaylistRepository) CreateOrGet(ctx context.Context, subscriberID int64, day time.Time) (*models.Playlist, error) {
	key := models.DayKey(day)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO playlists (sid, created_at) VALUES (?, ?) ON CONFLICT (sid, created_at) DO NOTHING`,
		subscriberID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}

	return r.GetForDay(ctx, subscriberID, day)
}

// GetForDay retrieves the subscriber's playlist for day.
func (r *PlaylistRepository) GetForDay(ctx context.Context, subscriberID int64, day time.Time) (*models.Playlist, error) {
	var p models.Playlist
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sid, created_at FROM playlists WHERE sid = ? AND created_at = ?`,
		subscriberID, models.DayKey(day),
	)
	if err := row.Scan(&p.ID, &p.SubscriberID, &p.Day); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	return &p, nil
}

// CountForSubscriber returns how many daily playlists exist for a subscriber.
func (r *PlaylistRepository) CountForSubscriber(ctx context.Context, subscriberID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM playlists WHERE sid = ?`, subscriberID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count playlists: %w", err)
	}
	return n, nil
}
