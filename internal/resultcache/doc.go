// Package resultcache stores finished orchestration results keyed by the
// content fingerprint of the input file, so a repeat request for the same
// bytes is answered without analysis, enhancement or recognition.
//
// # Layout
//
// Every entry is three files in the cache directory sharing the fingerprint
// as a prefix:
//
//	<fp>.json       structured result payload
//	<fp>.srt        rendered subtitles (optional)
//	<fp>.meta.json  metadata record (hash, createdAt, processing details)
//
// The metadata record is written last and removed first. An entry is only
// visible when its metadata exists, so an interrupted Put or Delete leaves
// at worst orphaned payload files that Stats counts and the next Put or
// Delete replaces.
//
// # Concurrency
//
// Writers for different fingerprints never coordinate. Lock takes a flock on
// <fp>.lock so two runs for the same bytes can serialise; the orchestrator
// re-reads the cache after acquiring it.
//
// Use `scribe cache stats` to inspect usage and `scribe cache purge` to drop
// entries older than the configured retention.
package resultcache
