package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/desertthunder/acura/internal/models"
)

// SQLiteStore implements [models.Store] on top of the per-entity SQLite repositories.
type SQLiteStore struct {
	db          *sql.DB
	subscribers *SubscriberRepository
	tracks      *TrackRepository
	playlists   *PlaylistRepository
	suggestions *SuggestionRepository
}

var _ models.Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:          db,
		subscribers: NewSubscriberRepository(db),
		tracks:      NewTrackRepository(db),
		playlists:   NewPlaylistRepository(db),
		suggestions: NewSuggestionRepository(db),
	}
}

func (s *SQLiteStore) CreateSubscriber(ctx context.Context, license, note string) (*models.Subscriber, error) {
	return s.subscribers.Create(ctx, license, note)
}

func (s *SQLiteStore) SubscriberByLicense(ctx context.Context, license string) (*models.Subscriber, error) {
	return s.subscribers.GetByLicense(ctx, license)
}

func (s *SQLiteStore) AddPrompt(ctx context.Context, subscriberID int64, text, activeWhen string) (*models.Prompt, error) {
	return s.subscribers.AddPrompt(ctx, subscriberID, text, activeWhen)
}

func (s *SQLiteStore) PromptsBySubscriber(ctx context.Context, subscriberID int64) ([]models.Prompt, error) {
	return s.subscribers.PromptsBySubscriber(ctx, subscriberID)
}

func (s *SQLiteStore) CreateOrGetPlaylist(ctx context.Context, subscriberID int64, day time.Time) (*models.Playlist, error) {
	return s.playlists.CreateOrGet(ctx, subscriberID, day)
}

func (s *SQLiteStore) CreateTrack(ctx context.Context, track models.VerifiedTrack) (*models.Track, error) {
	return s.tracks.Create(ctx, track)
}

func (s *SQLiteStore) SetTrackEmbedding(ctx context.Context, trackID int64, embedding []float32) error {
	return s.tracks.SetEmbedding(ctx, trackID, embedding)
}

func (s *SQLiteStore) SimilarTracks(ctx context.Context, embedding []float32, maxDistance float64) ([]models.ScoredTrack, error) {
	return s.tracks.Similar(ctx, embedding, maxDistance)
}

func (s *SQLiteStore) AddSuggestion(ctx context.Context, playlistID, trackID int64, at time.Time) (*models.Suggestion, error) {
	return s.suggestions.Add(ctx, playlistID, trackID, at)
}

func (s *SQLiteStore) RecentlySuggested(ctx context.Context, subscriberID int64, since time.Time) (map[int64]struct{}, error) {
	return s.suggestions.RecentTrackIDs(ctx, subscriberID, since)
}

func (s *SQLiteStore) Tracklist(ctx context.Context, subscriberID int64, day time.Time) ([]models.TracklistEntry, error) {
	return s.suggestions.Tracklist(ctx, subscriberID, day)
}

func (s *SQLiteStore) SetPlayback(ctx context.Context, subscriberID, suggestionID int64, at time.Time) error {
	return s.suggestions.SetPlayback(ctx, subscriberID, suggestionID, at)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
