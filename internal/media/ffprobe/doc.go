// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// scribe uses it to describe the source file recorded with each result cache
// entry (container, duration, size, primary audio stream and its language
// tag) and to reject inputs that carry no audio before any analysis runs.
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns parsed Result
//   - InspectWith: the same with an injectable command runner for tests
package ffprobe
