package models

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar-day format used for playlist keys.
const DayLayout = "2006-01-02"

// Subscriber is the identity curation runs on behalf of.
type Subscriber struct {
	ID        int64
	License   string
	CreatedAt time.Time
	Note      string
}

// Prompt is a subscriber's standing ambiance description.
type Prompt struct {
	ID           int64
	SubscriberID int64
	Text         string
	ActiveWhen   string
}

// Track is a recording confirmed to exist as a playable video.
type Track struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Duration  int       `json:"duration"` // seconds
	URI       string    `json:"uri"`
	Explicit  bool      `json:"explicit"`
	Image     string    `json:"image,omitempty"`
	Embedding []float32 `json:"-"`
	Genres    []string  `json:"genres,omitempty"`
}

// ScoredTrack is a nearest-neighbour result with its cosine distance to the probe vector.
type ScoredTrack struct {
	Track
	Distance float64
}

// Playlist groups a subscriber's suggestions for one day.
type Playlist struct {
	ID           int64
	SubscriberID int64
	Day          time.Time
}

// Suggestion attaches a track to a playlist.
type Suggestion struct {
	ID         int64
	PlaylistID int64
	TrackID    int64
	AddedAt    time.Time
	Consumed   bool
}

// Playback records the suggestion a subscriber played most recently.
type Playback struct {
	SubscriberID int64
	SuggestionID int64
	UpdatedAt    time.Time
}

// TracklistEntry is a suggestion joined with its track, as served to players.
type TracklistEntry struct {
	SuggestionID int64     `json:"suggestion_id"`
	AddedAt      time.Time `json:"added_at"`
	Track        Track     `json:"track"`
}

// VerifiedTrack is a catalog track that matched a playable video.
type VerifiedTrack struct {
	Title    string
	URI      string
	Artist   string
	Duration int
	Explicit bool
	Image    string
}

// Validate checks the fields required to persist the track.
func (v VerifiedTrack) Validate() error {
	switch {
	case strings.TrimSpace(v.Title) == "":
		return fmt.Errorf("verified track: title is required")
	case strings.TrimSpace(v.Artist) == "":
		return fmt.Errorf("verified track: artist is required")
	case v.URI == "":
		return fmt.Errorf("verified track: uri is required")
	}
	return nil
}

// Day truncates t to its calendar day in loc, returned as midnight UTC of that date.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats a day for storage.
func DayKey(day time.Time) string {
	return day.Format(DayLayout)
}
