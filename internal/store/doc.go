// Package store provides the local transcript mirror for fold-console.
//
// # Overview
//
// The gateway owns the canonical conversation history. The mirror keeps a
// local SQLite copy so transcripts can be searched and exported without a
// round trip, and survive the gateway being unreachable.
//
// # Storage
//
// SQLite via modernc.org/sqlite (pure Go, no cgo). WAL mode is enabled for
// concurrent access. The schema is created automatically on first open.
//
// Two tables:
//
//   - conversations: id, title, updated_at
//   - messages: id, conversation_id, origin, content, created_at
//
// # Write Path
//
// SaveMessage upserts by message id. Streamed assistant messages are mirrored
// once settled, so a message id is normally written a single time; rewrites
// overwrite content, keeping the mirror convergent with the gateway.
package store
