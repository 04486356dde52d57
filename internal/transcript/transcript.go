// Package transcript defines the recognition output shared by the recognition
// runner, the transcript analyzer, correction, subtitles, and the result cache.
package transcript

import (
	"math"
	"strings"
)

// Segment is one timed span of recognized text. The confidence inputs are
// optional; engines report either an average log probability or a probability.
type Segment struct {
	ID          int      `json:"id"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Text        string   `json:"text"`
	AvgLogprob  *float64 `json:"avg_logprob,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
}

// Confidence returns e^avg_logprob, the explicit probability, or false when
// neither is present.
func (s Segment) Confidence() (float64, bool) {
	if s.AvgLogprob != nil {
		return math.Exp(*s.AvgLogprob), true
	}
	if s.Probability != nil {
		return *s.Probability, true
	}
	return 0, false
}

// Transcript is the structured output of one recognition call.
type Transcript struct {
	Text                string    `json:"text,omitempty"`
	Segments            []Segment `json:"segments"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
}

// PlainText returns Text, or the trimmed segment texts joined by spaces.
func (t Transcript) PlainText() string {
	if text := strings.TrimSpace(t.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// NonEmpty returns the segments whose text is not blank.
func (t Transcript) NonEmpty() []Segment {
	out := make([]Segment, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			out = append(out, seg)
		}
	}
	return out
}

// NumberSegments renumbers segments by position when their ids are missing
// or repeated, since correction and subtitles address segments by id. Unique
// ids are left untouched.
func NumberSegments(segments []Segment) {
	seen := make(map[int]struct{}, len(segments))
	for _, seg := range segments {
		if _, dup := seen[seg.ID]; dup {
			for i := range segments {
				segments[i].ID = i
			}
			return
		}
		seen[seg.ID] = struct{}{}
	}
}
