// Package inbox watches a drop directory and transcribes every supported
// file that lands in it, one file at a time.
//
// Files are debounced so a copy in progress is not picked up early. After a
// run the input is moved to processed/ or failed/ under the inbox, and the
// text, subtitle and JSON outputs are written to the output directory.
// Files already present when the watcher starts are queued first.
package inbox
