package enhance

import (
	"strconv"

	"scribe/internal/audioquality"
	"scribe/internal/ffmpeg"
	"scribe/internal/quality"
)

// PresetName identifies a preset. Presets are ordered from gentlest to strongest.
type PresetName string

const (
	PresetLight      PresetName = "LIGHT"
	PresetStandard   PresetName = "STANDARD"
	PresetAggressive PresetName = "AGGRESSIVE"
)

// Selection thresholds.
const (
	aggressiveBelowScore = 30
	standardBelowScore   = 60
)

// Preset is a fixed bundle of filter parameters. Zero values disable the
// optional stages.
type Preset struct {
	Name           PresetName `json:"name"`
	HighpassHz     int        `json:"highpassHz"`
	LowpassHz      int        `json:"lowpassHz,omitempty"`
	DenoiseNR      float64    `json:"denoiseNr,omitempty"`
	GainDB         float64    `json:"gainDb,omitempty"`
	LoudnessTarget float64    `json:"loudnessTarget"`
	Compress       bool       `json:"compress,omitempty"`
}

var presets = map[PresetName]Preset{
	PresetLight: {
		Name:           PresetLight,
		HighpassHz:     80,
		LoudnessTarget: -16,
	},
	PresetStandard: {
		Name:           PresetStandard,
		HighpassHz:     100,
		LowpassHz:      8000,
		DenoiseNR:      12,
		LoudnessTarget: -16,
		Compress:       true,
	},
	PresetAggressive: {
		Name:           PresetAggressive,
		HighpassHz:     150,
		LowpassHz:      7000,
		DenoiseNR:      25,
		GainDB:         6,
		LoudnessTarget: -14,
		Compress:       true,
	},
}

// Lookup returns the preset registered under name.
func Lookup(name PresetName) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// Presets returns every preset in strength order.
func Presets() []Preset {
	return []Preset{presets[PresetLight], presets[PresetStandard], presets[PresetAggressive]}
}

// SelectPreset maps a report to a preset: any CRITICAL issue or a score under
// 30 is AGGRESSIVE, any HIGH issue or a score under 60 is STANDARD, the rest LIGHT.
func SelectPreset(report audioquality.Report) Preset {
	switch {
	case quality.HasSeverity(report.Issues, quality.SeverityCritical) || report.Score < aggressiveBelowScore:
		return presets[PresetAggressive]
	case quality.HasSeverity(report.Issues, quality.SeverityHigh) || report.Score < standardBelowScore:
		return presets[PresetStandard]
	default:
		return presets[PresetLight]
	}
}

// Filters renders the preset as an ordered ffmpeg filter chain.
func (p Preset) Filters() []ffmpeg.Filter {
	filters := make([]ffmpeg.Filter, 0, 6)
	if p.HighpassHz > 0 {
		filters = append(filters, ffmpeg.Filter{Name: "highpass", Params: []ffmpeg.Param{{Key: "f", Value: strconv.Itoa(p.HighpassHz)}}})
	}
	if p.LowpassHz > 0 {
		filters = append(filters, ffmpeg.Filter{Name: "lowpass", Params: []ffmpeg.Param{{Key: "f", Value: strconv.Itoa(p.LowpassHz)}}})
	}
	if p.DenoiseNR > 0 {
		filters = append(filters, ffmpeg.Filter{Name: "afftdn", Params: []ffmpeg.Param{{Key: "nr", Value: formatFloat(p.DenoiseNR)}}})
	}
	if p.GainDB != 0 {
		filters = append(filters, ffmpeg.Filter{Name: "volume", Params: []ffmpeg.Param{{Value: formatFloat(p.GainDB) + "dB"}}})
	}
	if p.Compress {
		filters = append(filters, ffmpeg.Filter{Name: "acompressor", Params: []ffmpeg.Param{
			{Key: "threshold", Value: "-21dB"},
			{Key: "ratio", Value: "3"},
			{Key: "attack", Value: "20"},
			{Key: "release", Value: "250"},
		}})
	}
	filters = append(filters, ffmpeg.Filter{Name: "loudnorm", Params: []ffmpeg.Param{
		{Key: "I", Value: formatFloat(p.LoudnessTarget)},
		{Key: "TP", Value: "-1.5"},
		{Key: "LRA", Value: "11"},
	}})
	return filters
}

// TrimFilters removes leading and internal silences longer than minSeconds.
func TrimFilters(thresholdDB, minSeconds float64) []ffmpeg.Filter {
	threshold := formatFloat(thresholdDB) + "dB"
	duration := formatFloat(minSeconds)
	return []ffmpeg.Filter{{Name: "silenceremove", Params: []ffmpeg.Param{
		{Key: "start_periods", Value: "1"},
		{Key: "start_threshold", Value: threshold},
		{Key: "start_silence", Value: duration},
		{Key: "stop_periods", Value: "-1"},
		{Key: "stop_threshold", Value: threshold},
		{Key: "stop_duration", Value: duration},
	}}}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
