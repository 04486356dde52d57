package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"scribe/internal/quality"
	"scribe/internal/services"
)

// Summarize builds the human-readable explanation of a run. err is the fatal
// error, if any.
func Summarize(res *Result, err error) string {
	if res == nil {
		return ""
	}
	var parts []string
	if res.CacheHit {
		parts = append(parts, fmt.Sprintf("Served from cache for fingerprint %s.", shortFingerprint(res.Fingerprint)))
	}
	if res.AudioQuality != nil {
		parts = append(parts, describeAssessment("Audio quality", res.AudioQuality.Assessment))
	}
	if res.Enhancement != nil {
		line := fmt.Sprintf("Enhanced with the %s preset", res.Enhancement.Preset.Name)
		if res.Enhancement.Trimmed {
			line += " and trimmed silence"
		}
		parts = append(parts, line+".")
	}

	if err != nil {
		parts = append(parts, describeFailure(res, err))
	} else if res.TranscriptQuality != nil {
		parts = append(parts, describeRecognition(res))
	}

	if res.Correction != nil {
		stats := res.Correction.Statistics
		parts = append(parts, fmt.Sprintf("Correction changed %d of %d segments.", stats.CorrectedSegments, stats.TotalSegments))
	}
	if n := len(res.Warnings); n > 0 {
		messages := make([]string, 0, n)
		for _, w := range res.Warnings {
			messages = append(messages, w.Message)
		}
		parts = append(parts, fmt.Sprintf("%s: %s.", plural(n, "warning"), strings.Join(messages, "; ")))
	}
	return strings.Join(parts, " ")
}

func describeAssessment(label string, a quality.Assessment) string {
	line := fmt.Sprintf("%s %s (%d/100)", label, a.Level, a.Score)
	if len(a.Issues) == 0 {
		return line + "."
	}
	kinds := make([]string, 0, len(a.Issues))
	for _, issue := range a.Issues {
		kinds = append(kinds, strings.ToLower(strings.ReplaceAll(issue.Kind, "_", " ")))
	}
	return fmt.Sprintf("%s: %s.", line, strings.Join(kinds, ", "))
}

func describeRecognition(res *Result) string {
	report := res.TranscriptQuality
	attempts := len(res.AttemptedTiers)
	var line string
	switch {
	case report.IsAcceptable && attempts == 1:
		line = fmt.Sprintf("Transcribed with tier %s on the first attempt", res.ChosenTier)
	case report.IsAcceptable:
		line = fmt.Sprintf("Transcribed with tier %s after %s (%s)", res.ChosenTier, plural(attempts, "attempt"), strings.Join(res.AttemptedTiers, ", "))
	default:
		line = fmt.Sprintf("Recognition attempted with %s (%s), all rejected, best-effort result from %s kept", plural(attempts, "tier"), strings.Join(res.AttemptedTiers, ", "), res.ChosenTier)
	}
	line = fmt.Sprintf("%s; transcript quality %s (%d/100).", line, report.Level, report.Score)
	if !report.IsAcceptable && len(report.Recommendations) > 0 {
		line += " Recommendations: " + strings.Join(report.Recommendations, "; ") + "."
	}
	return line
}

func describeFailure(res *Result, err error) string {
	switch {
	case errors.Is(err, ErrFingerprint):
		return fmt.Sprintf("Source file could not be read, nothing was processed: %v.", err)
	case errors.Is(err, ErrAnalysis):
		return fmt.Sprintf("Audio analysis failed, recognition not attempted: %v.", err)
	case errors.Is(err, ErrRecognition):
		attempts := len(res.AttemptedTiers)
		if attempts == 0 {
			return fmt.Sprintf("Recognition not attempted: %v.", err)
		}
		return fmt.Sprintf("Recognition attempted with %s (%s), the last attempt failed: %v.", plural(attempts, "tier"), strings.Join(res.AttemptedTiers, ", "), err)
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrNotFound):
		return fmt.Sprintf("Request rejected: %v.", err)
	default:
		return fmt.Sprintf("Run failed: %v.", err)
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
