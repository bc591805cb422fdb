// Package server exposes the subscriber tracklist over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("GET /path").
//
// # Tracklist API
//
// [TracklistHandler] serves:
//   - GET /api/tracklist : today's unplayed suggestions for the license in the "lck" cookie or "license" query
//   - POST /api/playback : records {"suggestion_id": n} as played
//
// When a tracklist response holds RefillThreshold entries or fewer, a curation request is
// published so the queue consumer tops the playlist up. Requests inside one dedupe window share a message id.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
