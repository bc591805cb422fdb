package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
	gobreaker "github.com/sony/gobreaker/v2"
)

const braveBaseURL = "https://api.search.brave.com/res/v1"

type braveResult struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail struct {
		Src string `json:"src"`
	} `json:"thumbnail"`
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Videos struct {
		Results []braveResult `json:"results"`
	} `json:"videos"`
}

// BraveSearch implements [VideoSearcher] with the Brave web search API, restricted to youtube.com.
//
// Calls run through a circuit breaker: after consecutive failures the breaker opens and
// searches fail immediately with [shared.ErrCircuitOpen] until it half-opens again.
type BraveSearch struct {
	client  *RetryClient
	baseURL string
	token   string
	count   int
	breaker *gobreaker.CircuitBreaker[[]VideoResult]
}

// BreakerSettings tunes the video search circuit breaker.
type BreakerSettings struct {
	// Trips is the number of consecutive failures that opens the breaker.
	Trips uint32
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
}

// NewBraveSearch creates a video search client. count is the number of results requested per query.
func NewBraveSearch(cfg shared.BraveConfig, client *RetryClient, count int, breaker BreakerSettings, logger *log.Logger) (*BraveSearch, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: brave search token is required", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = NewRetryClient(nil)
	}
	if logger == nil {
		logger = log.Default()
	}
	if count <= 0 {
		count = 10
	}
	if breaker.Trips == 0 {
		breaker.Trips = 5
	}
	if breaker.Cooldown <= 0 {
		breaker.Cooldown = time.Minute
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = braveBaseURL
	}

	settings := gobreaker.Settings{
		Name:        "video-search",
		MaxRequests: 1,
		Timeout:     breaker.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breaker.Trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BraveSearch{
		client:  client,
		baseURL: baseURL,
		token:   cfg.Token,
		count:   count,
		breaker: gobreaker.NewCircuitBreaker[[]VideoResult](settings),
	}, nil
}

// SearchVideos returns web and video results for query on youtube.com, web results first.
func (b *BraveSearch) SearchVideos(ctx context.Context, query string) ([]VideoResult, error) {
	results, err := b.breaker.Execute(func() ([]VideoResult, error) {
		return b.search(ctx, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w: %w", shared.ErrVideoSearch, shared.ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrVideoSearch, err)
	}
	return results, nil
}

func (b *BraveSearch) search(ctx context.Context, query string) ([]VideoResult, error) {
	params := url.Values{}
	params.Set("q", "site:youtube.com "+query)
	params.Set("country", "US")
	params.Set("search_lang", "en")
	params.Set("ui_lang", "en-US")
	params.Set("count", fmt.Sprint(b.count))
	params.Set("safesearch", "strict")
	params.Set("text_decorations", "false")

	header := http.Header{}
	header.Set("X-Subscription-Token", b.token)

	var resp braveResponse
	if err := b.client.GetJSON(ctx, b.baseURL+"/web/search?"+params.Encode(), header, &resp); err != nil {
		return nil, err
	}

	results := make([]VideoResult, 0, len(resp.Web.Results)+len(resp.Videos.Results))
	for _, r := range append(resp.Web.Results, resp.Videos.Results...) {
		if r.URL == "" {
			continue
		}
		results = append(results, VideoResult{Title: r.Title, URL: r.URL, Thumbnail: r.Thumbnail.Src})
	}
	return results, nil
}

// IsPlayableVideo reports whether rawURL points at a single YouTube video rather than a channel, playlist or search page.
func IsPlayableVideo(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		return u.Path == "/watch" && u.Query().Get("v") != ""
	case "youtu.be":
		return len(strings.Trim(u.Path, "/")) > 0
	}
	return false
}
