// Package ffmpeg wraps the ffmpeg binary as the audio filter engine.
//
// It has two modes. Analysis runs ffmpeg against a null muxer with the
// volumedetect or silencedetect filter and parses the statistics ffmpeg
// prints to stderr. Apply renders an ordered filter chain and writes a mono
// 16 kHz PCM WAV, the format the recognition runner expects.
//
// All process execution goes through a Runner so tests can substitute
// canned ffmpeg output.
package ffmpeg
