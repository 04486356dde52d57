package subtitles

import (
	"fmt"
	"strings"

	"scribe/internal/transcript"
)

// minCueSeconds is the display time given to cues whose end precedes their start.
const minCueSeconds = 0.5

// Render formats the non-empty segments as SRT, numbering cues from 1.
// An empty result means there was nothing to render.
func Render(segments []transcript.Segment) string {
	var b strings.Builder
	index := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := seg.Start
		if start < 0 {
			start = 0
		}
		end := seg.End
		if end <= start {
			end = start + minCueSeconds
		}
		index++
		if index > 1 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", index, FormatTimestamp(start), FormatTimestamp(end), text)
	}
	return b.String()
}

// FormatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
