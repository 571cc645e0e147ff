// Package store provides durable storage for the deadbolt pipeline.
//
// A single SQLite database holds everything the pipeline owns:
//
//   - seal_state: the singleton last-committed manifest (monotonic generation)
//   - journal: the append-only hash journal of observed content
//   - episodes: consumed trigger episodes for the one-shot dispatcher
//   - receipts: action receipts emitted by the dispatcher
//   - health: one heartbeat row per pipeline pass
//
// External evidence (presence beacons, anchor proofs, quorum credentials) is
// NOT stored here; those are produced by outside collaborators and consumed
// read-only from the evidence directory.
//
// The database is opened in WAL mode with a single-writer connection pool.
// Seal-state commits and episode consumption run inside transactions so no
// torn state is ever visible to a reader.
package store
