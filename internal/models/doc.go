// Package models defines the domain entities and the persistence contract of the curation engine.
//
// Read-only entities, provisioned outside the engine:
//   - [Subscriber] : the account a playlist is curated for, keyed by an opaque license
//   - [Prompt] : the subscriber's ambiance description
//
// Entities owned by the engine:
//   - [Track] : a verified recording, unique on (title, artist), optionally carrying an embedding
//   - [Playlist] : one per subscriber per calendar day
//   - [Suggestion] : a timestamped link between a playlist and a track
//   - [Playback] : the suggestion a subscriber played last
//
// [VerifiedTrack] is the pipeline's hand-off between video verification and persistence.
// [Store] is implemented by the SQLite and PostgreSQL repositories.
package models
