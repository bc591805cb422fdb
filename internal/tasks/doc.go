// Package tasks runs curation for a subscriber: it either reuses known tracks or discovers new ones,
// and appends them to the subscriber's playlist for the day.
//
// # Core Operations
//
// [Engine.Curate] is the single entry point. It loads the subscriber's prompt and drives the pipeline:
//
//  1. GenerateQuery : ask the language model for a catalog search query
//     - errorInfo from the previous failed loop is forwarded so the next query differs
//     - the retry budget is checked before every attempt
//  2. Route : embed the query, find similar stored tracks and decide (see [Decide])
//     - [Reuse] attaches the candidates that were not suggested recently and stops
//     - [Discover] continues with a catalog search
//  3. SearchCatalog : one page of playlists for the query
//  4. MatchPlaylist : first playlist the classifier accepts; its clean tracks are fetched
//  5. VerifyTracks : each track must resolve to a playable video with a close title
//  6. Persist : create tracks, store embeddings, append suggestions
//
// Steps that find nothing increment the retry counter and loop back to GenerateQuery.
// Catalog and video search errors end the run with an error.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters and a message.
// Updates use select with default so a slow reader never stalls curation.
package tasks
