// Package enhance picks and applies an audio cleanup preset.
//
// SelectPreset is a pure function of an audio quality report. Enhancer.Enhance
// renders the preset as an ffmpeg filter chain, writes a mono 16 kHz WAV into
// a run-owned temporary directory, and follows with a silence trimming pass
// when the filtered audio is still mostly silence. The returned Result owns
// its temporary files; callers must invoke Cleanup on every path.
package enhance
