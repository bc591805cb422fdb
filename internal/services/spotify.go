// Spotify Web API catalog client
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	maxSearchLimit    = 50
	maxPlaylistPages  = 20
	playlistPageLimit = 100
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyTrack represents a track object.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
}

// SpotifyPlaylistTrack wraps a track within a playlist. Track is null for removed or local items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in search results).
type SpotifySimplePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPaging[T any] struct {
	Items []*T    `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

type spotifySearchResponse struct {
	Playlists spotifyPaging[SpotifySimplePlaylist] `json:"playlists"`
}

// SpotifyCatalog implements [Catalog] against the Spotify Web API with an app-only token.
type SpotifyCatalog struct {
	credentials clientcredentials.Config
	baseURL     string
	httpClient  *http.Client
	opts        []RetryOption
	logger      *log.Logger

	mu     sync.Mutex
	client *RetryClient
}

// NewSpotifyCatalog creates a catalog client from client credentials.
//
// httpClient carries token and catalog requests and defaults to [http.DefaultClient].
// opts configure the underlying [RetryClient].
func NewSpotifyCatalog(cfg shared.SpotifyConfig, httpClient *http.Client, logger *log.Logger, opts ...RetryOption) (*SpotifyCatalog, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	s := &SpotifyCatalog{
		credentials: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
		},
		baseURL:    baseURL,
		httpClient: httpClient,
		opts:       append([]RetryOption{WithRetryLogger(logger)}, opts...),
		logger:     logger,
	}
	s.client = s.newClient()
	return s, nil
}

// newClient builds a retrying client whose transport fetches and caches a token, refreshing it before expiry.
func (s *SpotifyCatalog) newClient() *RetryClient {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.httpClient)
	return NewRetryClient(s.credentials.Client(ctx), s.opts...)
}

func (s *SpotifyCatalog) currentClient() *RetryClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// resetToken discards the cached token so the next request fetches a new one.
func (s *SpotifyCatalog) resetToken(stale *RetryClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == stale {
		s.client = s.newClient()
	}
}

// get fetches an absolute URL, refreshing the token once on 401.
func (s *SpotifyCatalog) get(ctx context.Context, rawURL string, out any) error {
	client := s.currentClient()
	err := client.GetJSON(ctx, rawURL, nil, out)
	if StatusCode(err) == http.StatusUnauthorized {
		s.logger.Warn("spotify token rejected, refreshing")
		s.resetToken(client)
		err = s.currentClient().GetJSON(ctx, rawURL, nil, out)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrCatalog, err)
	}
	return nil
}

// SearchPlaylists returns the first page of playlists matching query.
func (s *SpotifyCatalog) SearchPlaylists(ctx context.Context, query string, limit int) (*PlaylistPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxSearchLimit)

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "playlist")
	params.Set("limit", fmt.Sprint(limit))

	var resp spotifySearchResponse
	if err := s.get(ctx, s.baseURL+"/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	page := &PlaylistPage{Items: make([]CatalogPlaylist, 0, len(resp.Playlists.Items))}
	for _, p := range resp.Playlists.Items {
		if p == nil || p.ID == "" {
			continue
		}
		page.Items = append(page.Items, CatalogPlaylist{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			TrackCount:  p.Tracks.Total,
		})
	}
	if resp.Playlists.Next != nil {
		page.Next = *resp.Playlists.Next
	}
	return page, nil
}

// PlaylistTracks lists a playlist's tracks, following pagination links.
//
// Null entries, podcast episodes and tracks without an artist are skipped.
func (s *SpotifyCatalog) PlaylistTracks(ctx context.Context, playlistID string) ([]CatalogTrack, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id is required", shared.ErrInvalidInput)
	}

	next := fmt.Sprintf("%s/playlists/%s/tracks?limit=%d", s.baseURL, url.PathEscape(playlistID), playlistPageLimit)

	var tracks []CatalogTrack
	for page := 0; next != "" && page < maxPlaylistPages; page++ {
		var resp spotifyPaging[SpotifyPlaylistTrack]
		if err := s.get(ctx, next, &resp); err != nil {
			if errors.Is(err, shared.ErrAPIRequest) && StatusCode(err) == http.StatusNotFound {
				return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
			}
			return nil, err
		}

		for _, item := range resp.Items {
			if item == nil || item.Track == nil {
				continue
			}
			if t, ok := toCatalogTrack(*item.Track); ok {
				tracks = append(tracks, t)
			}
		}

		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}

	return tracks, nil
}

func toCatalogTrack(st SpotifyTrack) (CatalogTrack, bool) {
	if st.ID == "" || st.Name == "" || (st.Type != "" && st.Type != "track") {
		return CatalogTrack{}, false
	}

	t := CatalogTrack{
		ID:       st.ID,
		Title:    st.Name,
		Duration: st.DurationMS / 1000,
		Explicit: st.Explicit,
	}
	for _, a := range st.Artists {
		if a.Name != "" {
			t.Artists = append(t.Artists, a.Name)
		}
	}
	if len(t.Artists) == 0 {
		return CatalogTrack{}, false
	}
	if len(st.Album.Images) > 0 {
		t.Image = st.Album.Images[0].URL
	}
	return t, true
}
