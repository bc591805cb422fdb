// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/services"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockCatalog is a scripted [services.Catalog].
//
// Pages are returned in order for successive searches; once exhausted, an empty page is returned.
type MockCatalog struct {
	mu       sync.Mutex
	Pages    []*services.PlaylistPage
	Tracks   map[string][]services.CatalogTrack
	Err      error
	Searches []string
}

func (m *MockCatalog) SearchPlaylists(ctx context.Context, query string, limit int) (*services.PlaylistPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Searches = append(m.Searches, query)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Pages) == 0 {
		return &services.PlaylistPage{}, nil
	}
	page := m.Pages[0]
	m.Pages = m.Pages[1:]
	return page, nil
}

func (m *MockCatalog) PlaylistTracks(ctx context.Context, playlistID string) ([]services.CatalogTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tracks[playlistID], nil
}

// SearchCount reports how many searches were issued.
func (m *MockCatalog) SearchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Searches)
}

// MockVideoSearch answers video searches from a map keyed by query.
type MockVideoSearch struct {
	Results map[string][]services.VideoResult
	Err     error
}

func (m *MockVideoSearch) SearchVideos(ctx context.Context, query string) ([]services.VideoResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results[query], nil
}

// MockLLM returns scripted queries and marks playlists relevant by id.
type MockLLM struct {
	mu         sync.Mutex
	Queries    []string
	QueryErr   error
	Relevant   map[string]bool
	ErrorInfos []string
	calls      int
}

func (m *MockLLM) GenerateQuery(ctx context.Context, prompt, errorInfo string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorInfos = append(m.ErrorInfos, errorInfo)
	if m.QueryErr != nil {
		return "", m.QueryErr
	}
	q := "ambient query"
	if len(m.Queries) > 0 {
		q = m.Queries[m.calls%len(m.Queries)]
	}
	m.calls++
	return q, nil
}

func (m *MockLLM) IsRelevant(ctx context.Context, query string, playlist services.CatalogPlaylist) (bool, error) {
	return m.Relevant[playlist.ID], nil
}

// MockEmbedder returns the same vector for every text.
type MockEmbedder struct {
	Vector []float32
	Err    error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

// FixedClock returns a clock function frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
