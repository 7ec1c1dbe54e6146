// Package store is the SQLite Counter Store.
//
// Tables:
//   - chat_groups: per-group activation, off hours and last tag time
//   - topics: one row per (group, topic) with its khatm settings and totals
//   - verse_ranges: the verse range of quran topics
//   - user_contributions: per-user totals by category
//   - contribution_log: one row per applied contribution, keyed by request ID
//   - processed_requests: request IDs already applied; survives log purges
//
// The schema is managed by goose migrations embedded from migrations/.
//
// # Writes
//
// All writes go through Update, which runs one BEGIN IMMEDIATE transaction
// on a single-connection handle. Lock errors (SQLITE_BUSY, SQLITE_LOCKED)
// are wrapped with khatm.ErrContention so the processor can retry them;
// everything else is returned as is.
//
// # Reads
//
// Read methods use a separate query-only pool and may run concurrently
// with a write. Results are ordered explicitly so equal inputs give equal
// outputs.
package store
