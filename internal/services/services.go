package services

import (
	"context"
	"fmt"
)

// CatalogPlaylist is a playlist returned by a catalog search.
type CatalogPlaylist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
}

// PlaylistPage is one page of playlist search results. Next is empty on the last page.
type PlaylistPage struct {
	Items []CatalogPlaylist
	Next  string
}

// CatalogTrack is a track listed in a catalog playlist.
type CatalogTrack struct {
	ID       string
	Title    string
	Artists  []string
	Duration int // seconds
	Explicit bool
	Image    string
}

// PrimaryArtist returns the first credited artist.
func (t CatalogTrack) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// VideoResult is a single web search hit from the video index.
type VideoResult struct {
	Title     string
	URL       string
	Thumbnail string
}

// Catalog searches the music catalog.
type Catalog interface {
	SearchPlaylists(ctx context.Context, query string, limit int) (*PlaylistPage, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]CatalogTrack, error)
}

// VideoSearcher looks up recordings in the video index.
type VideoSearcher interface {
	SearchVideos(ctx context.Context, query string) ([]VideoResult, error)
}

// QueryGenerator drafts a catalog search query from an ambiance prompt.
//
// errorInfo describes why the previous attempt produced nothing and may be empty.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, prompt, errorInfo string) (string, error)
}

// RelevanceClassifier decides whether a playlist fits a search query.
type RelevanceClassifier interface {
	IsRelevant(ctx context.Context, query string, playlist CatalogPlaylist) (bool, error)
}

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbeddingText is the text embedded for a search query.
func QueryEmbeddingText(query string) string {
	return fmt.Sprintf("Search Query: %s", query)
}

// TrackEmbeddingText is the text embedded for a track discovered by query.
func TrackEmbeddingText(query, title, artist string) string {
	return fmt.Sprintf("\nSearch Query: %s\nTrack Title: %s\nTrack Artist: %s", query, title, artist)
}
