package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries  = 5
	defaultBaseBackoff = time.Second
)

// RetryClient sends HTTP requests to rate-limited APIs, retrying throttled (429),
// server-side (5xx) and transport failures with exponential backoff.
//
// Backoff doubles from the base (1s, 2s, 4s, ...) unless the server sends Retry-After.
// After maxRetries attempts the returned error wraps [shared.ErrRetriesExhausted].
type RetryClient struct {
	client      *http.Client
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter
	logger      *log.Logger
}

// RetryOption configures a [RetryClient].
type RetryOption func(*RetryClient)

// WithMaxRetries sets the total number of attempts.
func WithMaxRetries(n int) RetryOption {
	return func(c *RetryClient) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the delay before the second attempt.
func WithBaseBackoff(d time.Duration) RetryOption {
	return func(c *RetryClient) {
		if d > 0 {
			c.baseBackoff = d
		}
	}
}

// WithRateLimit paces attempts to perSecond requests with a burst of one.
func WithRateLimit(perSecond float64) RetryOption {
	return func(c *RetryClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRetryLogger sets the logger used for retry warnings.
func WithRetryLogger(l *log.Logger) RetryOption {
	return func(c *RetryClient) { c.logger = l }
}

// NewRetryClient wraps client, which defaults to [http.DefaultClient].
func NewRetryClient(client *http.Client, opts ...RetryOption) *RetryClient {
	if client == nil {
		client = http.DefaultClient
	}
	c := &RetryClient{
		client:      client,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req, retrying as described on [RetryClient]. Non-retryable responses are returned as-is.
func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	ctx := req.Context()
	var lastErr error
	for attempt := range c.maxRetries {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("request canceled: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("request canceled: %w", err)
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to reset request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		retryAfter, retry := shouldRetry(ctx, resp, err)
		if !retry {
			return resp, err
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			_ = resp.Body.Close()
		}
		c.logger.Warn("retrying request", "url", req.URL.Redacted(), "attempt", attempt+1, "max", c.maxRetries, "err", lastErr)

		if attempt == c.maxRetries-1 {
			break
		}

		backoff := c.baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", shared.ErrRetriesExhausted, c.maxRetries, lastErr)
}

// GetJSON issues a GET with the given headers and decodes a 2xx JSON body into out.
//
// Non-2xx responses that survive retries wrap [shared.ErrAPIRequest] and carry an [*APIError].
func (c *RetryClient) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, &APIError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-success HTTP response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, shared.Truncate(e.Body, 200))
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		// bad client credentials will not fix themselves
		var tokenErr *oauth2.RetrieveError
		if errors.As(err, &tokenErr) {
			return 0, false
		}
		return 0, true
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
