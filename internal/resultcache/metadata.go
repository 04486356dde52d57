package resultcache

import "time"

const metadataVersion = 1

// Source describes the input file an entry was produced from.
type Source struct {
	Path            string  `json:"path"`
	Name            string  `json:"name"`
	SizeBytes       int64   `json:"sizeBytes"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Container       string  `json:"container,omitempty"`
	AudioCodec      string  `json:"audioCodec,omitempty"`
	SampleRate      int     `json:"sampleRate,omitempty"`
	Channels        int     `json:"channels,omitempty"`
	Language        string  `json:"language,omitempty"`
}

// Metadata is the per-entry record persisted as <fp>.meta.json.
type Metadata struct {
	Version                   int            `json:"version"`
	Hash                      string         `json:"hash"`
	CreatedAt                 time.Time      `json:"createdAt"`
	ModelTier                 string         `json:"modelTier"`
	Language                  string         `json:"language,omitempty"`
	ProcessingDurationSeconds float64        `json:"processingDurationSeconds"`
	Source                    Source         `json:"source"`
	SegmentCount              int            `json:"segmentCount"`
	AudioQualityScore         int            `json:"audioQualityScore"`
	TranscriptQualityScore    int            `json:"transcriptQualityScore"`
	Enhanced                  bool           `json:"enhanced"`
	Corrected                 bool           `json:"corrected"`
	HasSubtitles              bool           `json:"hasSubtitles"`
	Processing                map[string]any `json:"processing,omitempty"`
}

// ProcessingDuration returns the recorded processing time.
func (m Metadata) ProcessingDuration() time.Duration {
	return time.Duration(m.ProcessingDurationSeconds * float64(time.Second))
}
