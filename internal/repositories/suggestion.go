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

// SuggestionRepository links tracks to playlists and tracks what subscribers have played.
type SuggestionRepository struct {
	db *sql.DB
}

// NewSuggestionRepository creates a new SuggestionRepository with the given database connection
func NewSuggestionRepository(db *sql.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Add appends a track to a playlist.
func (r *SuggestionRepository) Add(ctx context.Context, playlistID, trackID int64, at time.Time) (*models.Suggestion, error) {
	at = at.UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO suggestions (pid, tid, added_at) VALUES (?, ?, ?)`,
		playlistID, trackID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert suggestion: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read suggestion id: %w", err)
	}

	return &models.Suggestion{ID: id, PlaylistID: playlistID, TrackID: trackID, AddedAt: at}, nil
}

// RecentTrackIDs returns the ids of tracks suggested to the subscriber at or after since.
func (r *SuggestionRepository) RecentTrackIDs(ctx context.Context, subscriberID int64, since time.Time) (map[int64]struct{}, error) {
	query := `
		SELECT DISTINCT s.tid
		FROM suggestions s
		JOIN playlists p ON p.id = s.pid
		WHERE p.sid = ? AND s.added_at >= ?
	`
	rows, err := r.db.QueryContext(ctx, query, subscriberID, since.UTC())
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

// Tracklist returns the subscriber's unplayed suggestions for day in the order they were added.
func (r *SuggestionRepository) Tracklist(ctx context.Context, subscriberID int64, day time.Time) ([]models.TracklistEntry, error) {
	query := `
		SELECT s.id, s.added_at, t.id, t.title, t.artist, t.duration, t.uri, t.explicit, t.image
		FROM suggestions s
		JOIN playlists p ON p.id = s.pid
		JOIN tracks t ON t.id = s.tid
		WHERE p.sid = ? AND p.created_at = ? AND s.consumed = 0
		ORDER BY s.added_at, s.id
	`
	rows, err := r.db.QueryContext(ctx, query, subscriberID, models.DayKey(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query tracklist: %w", err)
	}
	defer rows.Close()

	entries := []models.TracklistEntry{}
	for rows.Next() {
		var (
			e     models.TracklistEntry
			image sql.NullString
		)
		err := rows.Scan(&e.SuggestionID, &e.AddedAt,
			&e.Track.ID, &e.Track.Title, &e.Track.Artist, &e.Track.Duration, &e.Track.URI, &e.Track.Explicit, &image)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracklist entry: %w", err)
		}
		e.Track.Image = image.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SetPlayback marks the suggestion consumed and records it as the subscriber's last played item.
//
// The suggestion must belong to one of the subscriber's playlists.
func (r *SuggestionRepository) SetPlayback(ctx context.Context, subscriberID, suggestionID int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE suggestions SET consumed = 1 WHERE id = ? AND pid IN (SELECT id FROM playlists WHERE sid = ?)`,
		suggestionID, subscriberID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark suggestion consumed: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrSuggestionNotFound, suggestionID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO playback (sid, suggestion_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (sid) DO UPDATE SET suggestion_id = excluded.suggestion_id, updated_at = excluded.updated_at`,
		subscriberID, suggestionID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert playback: %w", err)
	}

	return tx.Commit()
}

// Playback returns the subscriber's last played suggestion.
func (r *SuggestionRepository) Playback(ctx context.Context, subscriberID int64) (*models.Playback, error) {
	var p models.Playback
	row := r.db.QueryRowContext(ctx, `SELECT sid, suggestion_id, updated_at FROM playback WHERE sid = ?`, subscriberID)
	if err := row.Scan(&p.SubscriberID, &p.SuggestionID, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("failed to scan playback: %w", err)
	}
	return &p, nil
}
