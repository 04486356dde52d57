// Package whisper drives faster-whisper as the speech recognition engine.
//
// A small Python runner is embedded in the binary and written to the work
// directory on first use. Each Transcribe call runs it for one audio file and
// model, parses the JSON document it prints on stdout into a
// transcript.Transcript, and keeps a copy of that JSON under the work
// directory. Download pre-fetches a model so later runs can work offline.
package whisper
