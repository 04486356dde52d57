// Package history records every orchestration run in a SQLite database so
// operators can see what was transcribed, which tier won, and why runs failed.
//
// Rows are append-only. Cache hits are recorded too, with the cache_hit flag
// set, so the table reflects demand rather than only work performed.
//
// The schema is embedded and versioned; a version mismatch is reported as
// ErrSchemaMismatch and resolved by deleting the database file.
package history
