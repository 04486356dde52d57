// Package correction runs the optional LLM pass that fixes punctuation,
// casing and obvious recognition mistakes in transcript segments.
//
// Segments are sent in batches; the model answers with the corrected text
// and a list of changes per segment id. Timing always comes from the input so
// a misbehaving model cannot shift subtitles. Segments the model omits keep
// their original text. The engine never decides whether correction should
// run; the orchestrator gates it on transcript quality.
package correction
