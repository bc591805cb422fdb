// Package services wraps the external collaborators of the curation engine.
//
// # Resilient HTTP
//
// [RetryClient] retries throttled, 5xx and transport failures with doubling backoff and
// surfaces [shared.ErrRetriesExhausted] once its attempt budget is spent.
// It optionally paces requests with a token-bucket limiter.
//
// # Catalog
//
// [SpotifyCatalog] searches playlists and pages through playlist tracks using an app-only
// client-credentials token. Tokens refresh on expiry, and a 401 drops the cached token once.
//
// # Video index
//
// [BraveSearch] queries the Brave web search API restricted to youtube.com, behind a circuit breaker.
//
// # Language model
//
// [LLM] drafts search queries and classifies playlist relevance through any OpenAI-compatible
// endpoint, re-asking when the output fails validation. [OpenAIEmbedder] computes embeddings and
// [CachedEmbedder] memoizes them in Redis.
package services
