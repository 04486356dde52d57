// Package logs reads the scribe log file for `scribe logs`.
//
// Tail returns the last N lines or everything after a byte offset with
// bounded memory, optionally keeping only lines that mention a run ID.
// Follow keeps polling for appended lines until its context ends.
package logs
