// Package repositories implements persistence for the curation engine.
//
// Two backends satisfy [models.Store]:
//   - [SQLiteStore] : local and test storage over database/sql, embeddings kept as JSON and ranked in process
//   - [PostgresStore] : production storage over a pgx pool with pgvector cosine-distance search
//
// The SQLite store is assembled from per-entity repositories:
//   - [SubscriberRepository] : subscriber and prompt lookups
//   - [TrackRepository] : idempotent track creation, embeddings, nearest neighbours
//   - [PlaylistRepository] : create-or-fetch daily playlists
//   - [SuggestionRepository] : suggestions, recent history, tracklists and playback
//
// Track and playlist creation never fail on duplicates: conflicting inserts are ignored and
// the existing row is returned, so concurrent pipelines converge on one row.
package repositories
