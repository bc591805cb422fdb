package models

import (
	"context"
	"time"
)

// Store is the persistence contract shared by the SQLite and PostgreSQL repositories.
//
// Creation methods for tracks and playlists are create-or-fetch: duplicates resolve to the existing row.
type Store interface {
	CreateSubscriber(ctx context.Context, license, note string) (*Subscriber, error)
	SubscriberByLicense(ctx context.Context, license string) (*Subscriber, error)
	AddPrompt(ctx context.Context, subscriberID int64, text, activeWhen string) (*Prompt, error)
	PromptsBySubscriber(ctx context.Context, subscriberID int64) ([]Prompt, error)

	CreateOrGetPlaylist(ctx context.Context, subscriberID int64, day time.Time) (*Playlist, error)
	CreateTrack(ctx context.Context, track VerifiedTrack) (*Track, error)
	SetTrackEmbedding(ctx context.Context, trackID int64, embedding []float32) error
	SimilarTracks(ctx context.Context, embedding []float32, maxDistance float64) ([]ScoredTrack, error)

	AddSuggestion(ctx context.Context, playlistID, trackID int64, at time.Time) (*Suggestion, error)
	RecentlySuggested(ctx context.Context, subscriberID int64, since time.Time) (map[int64]struct{}, error)
	Tracklist(ctx context.Context, subscriberID int64, day time.Time) ([]TracklistEntry, error)
	SetPlayback(ctx context.Context, subscriberID, suggestionID int64, at time.Time) error

	Close() error
}
