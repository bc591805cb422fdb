package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Input errors: never retried, the message is rejected without requeue
	ErrInvalidMessage     = fmt.Errorf("invalid curation message")
	ErrSubscriberNotFound = fmt.Errorf("subscriber not found")
	ErrPromptNotFound     = fmt.Errorf("ambiance prompt not found")

	// Queue errors
	ErrShutdownTimeout = fmt.Errorf("workers still running at shutdown deadline")

	// Upstream errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrRetriesExhausted = fmt.Errorf("retries exhausted")
	ErrCatalog          = fmt.Errorf("catalog request failed")
	ErrVideoSearch      = fmt.Errorf("video search failed")
	ErrCircuitOpen      = fmt.Errorf("circuit breaker open")
	ErrLLMOutput        = fmt.Errorf("invalid model output")
	ErrEmbedding        = fmt.Errorf("embedding request failed")

	// Persistence errors
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrSuggestionNotFound = fmt.Errorf("suggestion not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
