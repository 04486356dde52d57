package subtitles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// durationToleranceSeconds bounds how far the last cue may run past the
// media duration before Validate flags it. Speech ending early is normal.
const durationToleranceSeconds = 8.0

// Cue is one parsed SRT block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Parse reads SRT content into cues, skipping malformed blocks.
func Parse(content string) []Cue {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if content == "" {
		return nil
	}
	var cues []Cue
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		parts := strings.Split(lines[1], "-->")
		if len(parts) != 2 {
			continue
		}
		start, err := ParseTimestamp(parts[0])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(parts[1])
		if err != nil {
			continue
		}
		cues = append(cues, Cue{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], "\n"),
		})
	}
	return cues
}

// ParseTimestamp converts an SRT timestamp to seconds. A period is accepted
// in place of the comma before the milliseconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// Validate checks SRT content for format issues. mediaSeconds may be zero
// when the duration is unknown. An empty slice means validation passed.
func Validate(content string, mediaSeconds float64) []string {
	var issues []string
	cues := Parse(content)
	if len(cues) == 0 {
		return append(issues, "empty_subtitle_file")
	}

	first := math.Inf(1)
	var last float64
	prevEnd := 0.0
	for i, cue := range cues {
		if cue.Index != i+1 {
			issues = append(issues, fmt.Sprintf("cue_numbering: expected %d got %d", i+1, cue.Index))
		}
		if cue.End <= cue.Start {
			issues = append(issues, fmt.Sprintf("cue_%d_non_positive_duration", cue.Index))
		}
		if cue.Start < prevEnd-0.001 {
			issues = append(issues, fmt.Sprintf("cue_%d_overlaps_previous", cue.Index))
		}
		first = math.Min(first, cue.Start)
		last = math.Max(last, cue.End)
		prevEnd = cue.End
	}
	if first == 0 && last == 0 {
		issues = append(issues, "no_valid_timestamps")
	}
	if mediaSeconds > 0 && last > 0 {
		if delta := mediaSeconds - last; delta < -durationToleranceSeconds {
			issues = append(issues, fmt.Sprintf("duration_mismatch: delta=%.1fs", delta))
		}
	}
	return issues
}
