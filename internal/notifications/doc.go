// Package notifications delivers ntfy push messages about unattended
// transcription runs.
//
// The inbox watcher publishes an event per finished file and one when it
// stops. When no ntfy topic is configured NewService returns a no-op
// implementation so callers never branch on configuration.
package notifications
