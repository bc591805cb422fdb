package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRetryClient(t *testing.T) {
	fast := []RetryOption{WithBaseBackoff(time.Millisecond), WithRetryLogger(quietLogger())}

	t.Run("retries throttled responses until success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		client := NewRetryClient(server.Client(), fast...)
		var out struct{ OK bool }
		if err := client.GetJSON(context.Background(), server.URL, nil, &out); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !out.OK {
			t.Error("expected decoded body")
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewRetryClient(server.Client(), append(fast, WithMaxRetries(4))...)
		err := client.GetJSON(context.Background(), server.URL, nil, nil)
		if !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if calls.Load() != 4 {
			t.Errorf("expected 4 attempts, got %d", calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "nope", http.StatusBadRequest)
		}))
		defer server.Close()

		client := NewRetryClient(server.Client(), fast...)
		err := client.GetJSON(context.Background(), server.URL, nil, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if StatusCode(err) != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", StatusCode(err))
		}
		if calls.Load() != 1 {
			t.Errorf("expected a single attempt, got %d", calls.Load())
		}
	})

	t.Run("retries transport errors", func(t *testing.T) {
		client := NewRetryClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset")
		})},
			append(fast, WithMaxRetries(2))...)

		req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
		_, err := client.Do(req)
		if !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Errorf("expected ErrRetriesExhausted, got %v", err)
		}
	})

	t.Run("replays the request body", func(t *testing.T) {
		var (
			mu     sync.Mutex
			bodies []string
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(b))
			n := len(bodies)
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewRetryClient(server.Client(), fast...)
		req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		resp.Body.Close()

		mu.Lock()
		defer mu.Unlock()
		if len(bodies) != 2 || bodies[0] != "payload" || bodies[1] != "payload" {
			t.Errorf("expected body on both attempts, got %q", bodies)
		}
	})

	t.Run("stops when the context is canceled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		client := NewRetryClient(server.Client(), WithBaseBackoff(time.Hour), WithRetryLogger(quietLogger()))

		done := make(chan error, 1)
		go func() { done <- client.GetJSON(ctx, server.URL, nil, nil) }()
		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client did not stop after cancellation")
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	tc := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "seconds", header: "3", want: 3 * time.Second},
		{name: "missing", header: "", want: 0},
		{name: "garbage", header: "soon", want: 0},
		{name: "past date", header: "Mon, 02 Jan 2006 15:04:05 GMT", want: 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(resp); got != tt.want {
				t.Errorf("parseRetryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}
