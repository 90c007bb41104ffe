// Package store provides the SQLite journal of kernel runs.
//
// The journal is append-only and holds three tables:
//   - runs: one row per node boot, keyed by a UUIDv7 run id
//   - events: directive outcomes recorded by the managers
//   - packets: every MP packet a node sent or received, with its wire image
//
// # Ordering
//
// Rows are stamped with a logical seq from the journal's sequencer, never
// with wall-clock time. Every reader orders by seq ASC, id ASC COLLATE
// BINARY, so two journals of the same deterministic run read back
// identically.
//
// # Identity
//
// Event ids are content addressed (ir.EventID over canonical JSON) and
// packet ids are ir.PacketDigest values. Inserts use ON CONFLICT DO NOTHING,
// so recording the same row twice is harmless.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - a single open connection: SQLite has one writer
package store
