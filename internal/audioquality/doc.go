// Package audioquality scores raw audio before recognition.
//
// Analyze runs two ffmpeg analysis passes (volumedetect, then silencedetect
// at the configured threshold and minimum length), derives loudness and
// silence features, and evaluates a fixed deduction table against them. Any
// failure to run ffmpeg or parse its output is returned as ErrAnalysis; there
// is no default report.
package audioquality
