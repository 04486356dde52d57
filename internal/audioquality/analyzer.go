package audioquality

import (
	"context"
	"errors"
	"fmt"
	"math"

	"scribe/internal/ffmpeg"
	"scribe/internal/quality"
)

// ErrAnalysis marks a failed analysis pass.
var ErrAnalysis = errors.New("audio analysis failed")

// Issue kinds.
const (
	KindLowVolume       = "LOW_VOLUME"
	KindLowPeak         = "LOW_PEAK"
	KindExcessSilence   = "EXCESSIVE_SILENCE"
	KindInsufficientVox = "INSUFFICIENT_SPEECH"
)

// Defaults for the silencedetect pass.
const (
	DefaultSilenceThresholdDB = -50.0
	DefaultMinSilenceSeconds  = 0.5
)

// Features are the measurements derived from the analysis passes.
type Features struct {
	MeanVolumeDB      float64 `json:"meanVolumeDb"`
	PeakVolumeDB      float64 `json:"peakVolumeDb"`
	Duration          float64 `json:"durationSeconds"`
	SilenceDuration   float64 `json:"silenceSeconds"`
	SpeechDuration    float64 `json:"nonSilenceSeconds"`
	SilencePercentage float64 `json:"silencePercentage"`
}

// Report is the scored assessment of one audio file.
type Report struct {
	quality.Assessment
	Features Features `json:"features"`
}

// Rules is the deduction table applied to Features.
var Rules = []quality.Rule[Features]{
	{
		Kind:       KindLowVolume,
		Severity:   quality.SeverityHigh,
		Deduction:  30,
		Threshold:  -40,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.MeanVolumeDB },
		Message:    "mean volume %.1f dB is below %.0f dB",
	},
	{
		Kind:       KindLowPeak,
		Severity:   quality.SeverityCritical,
		Deduction:  40,
		Threshold:  -20,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.PeakVolumeDB },
		Message:    "peak volume %.1f dB is below %.0f dB",
	},
	{
		Kind:       KindExcessSilence,
		Severity:   quality.SeverityHigh,
		Deduction:  25,
		Threshold:  80,
		Comparison: quality.Above,
		Measure:    func(f Features) float64 { return f.SilencePercentage },
		Message:    "silence covers %.1f%% of the audio (limit %.0f%%)",
	},
	{
		Kind:       KindInsufficientVox,
		Severity:   quality.SeverityCritical,
		Deduction:  50,
		Threshold:  2,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.SpeechDuration },
		Message:    "only %.2fs of non-silent audio (minimum %.0fs)",
	},
}

// Score evaluates the deduction table against features.
func Score(features Features) Report {
	return Report{
		Assessment: quality.Assess(quality.Evaluate(Rules, features)),
		Features:   features,
	}
}

// DeriveFeatures combines volume and silence statistics.
func DeriveFeatures(volume ffmpeg.Volume, silence ffmpeg.Silence) Features {
	duration := volume.Duration
	if duration <= 0 {
		duration = silence.Duration
	}
	silent := math.Min(silence.Total(), duration)
	features := Features{
		MeanVolumeDB:    volume.MeanDB,
		PeakVolumeDB:    volume.PeakDB,
		Duration:        duration,
		SilenceDuration: silent,
		SpeechDuration:  math.Max(duration-silent, 0),
	}
	if duration > 0 {
		features.SilencePercentage = silent * 100 / duration
	}
	return features
}

// Prober is the subset of the ffmpeg client used for analysis.
type Prober interface {
	VolumeDetect(ctx context.Context, input string) (ffmpeg.Volume, error)
	SilenceDetect(ctx context.Context, input string, thresholdDB, minSeconds float64) (ffmpeg.Silence, error)
}

// Analyzer produces audio quality reports.
type Analyzer struct {
	prober      Prober
	thresholdDB float64
	minSilence  float64
}

// NewAnalyzer builds an analyzer. Zero thresholds fall back to the defaults.
func NewAnalyzer(prober Prober, thresholdDB, minSilenceSeconds float64) *Analyzer {
	if thresholdDB == 0 {
		thresholdDB = DefaultSilenceThresholdDB
	}
	if minSilenceSeconds <= 0 {
		minSilenceSeconds = DefaultMinSilenceSeconds
	}
	return &Analyzer{prober: prober, thresholdDB: thresholdDB, minSilence: minSilenceSeconds}
}

// Analyze scores the audio at path.
func (a *Analyzer) Analyze(ctx context.Context, path string) (Report, error) {
	if a == nil || a.prober == nil {
		return Report{}, fmt.Errorf("%w: analyzer not configured", ErrAnalysis)
	}
	volume, err := a.prober.VolumeDetect(ctx, path)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	silence, err := a.prober.SilenceDetect(ctx, path, a.thresholdDB, a.minSilence)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return Score(DeriveFeatures(volume, silence)), nil
}
