package transcriptquality

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"gonum.org/v1/gonum/stat"

	"scribe/internal/quality"
	"scribe/internal/transcript"
)

// Issue kinds.
const (
	KindEmptySegments     = "EMPTY_SEGMENTS"
	KindLowTokenCount     = "LOW_TOKEN_COUNT"
	KindLowLanguageConf   = "LOW_LANGUAGE_CONFIDENCE"
	KindLowConfidence     = "LOW_CONFIDENCE_SEGMENTS"
	KindInsufficientText  = "INSUFFICIENT_TEXT"
	KindRepetitiveContent = "REPETITIVE_CONTENT"
)

// LowConfidenceThreshold is the per-segment confidence below which a segment counts as low confidence.
const LowConfidenceThreshold = 0.3

const repetitionMinWords = 10

// Features are the aggregate transcript statistics.
type Features struct {
	SegmentCount            int     `json:"segmentCount"`
	NonEmptySegments        int     `json:"nonEmptySegments"`
	NonEmptyPercentage      float64 `json:"nonEmptyPercentage"`
	AvgTokensPerSegment     float64 `json:"avgTokensPerSegment"`
	LowConfidencePercentage float64 `json:"lowConfidencePercentage"`
	MeanConfidence          float64 `json:"meanConfidence"`
	TotalCharacters         int     `json:"totalCharacters"`
	TotalWords              int     `json:"totalWords"`
	UniqueWordRatio         float64 `json:"uniqueWordRatio"`
	LanguageProbability     float64 `json:"languageProbability"`
}

// Report is the scored assessment of one transcript.
type Report struct {
	quality.Assessment
	Features        Features `json:"features"`
	Recommendations []string `json:"recommendations"`
}

// Rules is the deduction table applied to Features.
var Rules = []quality.Rule[Features]{
	{
		Kind:       KindEmptySegments,
		Severity:   quality.SeverityCritical,
		Deduction:  40,
		Threshold:  30,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.NonEmptyPercentage },
		Message:    "only %.1f%% of segments contain text (minimum %.0f%%)",
	},
	{
		Kind:       KindLowTokenCount,
		Severity:   quality.SeverityHigh,
		Deduction:  25,
		Threshold:  3,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.AvgTokensPerSegment },
		Message:    "average of %.2f tokens per segment (minimum %.0f)",
	},
	{
		Kind:       KindLowLanguageConf,
		Severity:   quality.SeverityHigh,
		Deduction:  20,
		Threshold:  0.5,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.LanguageProbability },
		Message:    "language detection confidence %.2f (minimum %.2f)",
	},
	{
		Kind:       KindLowConfidence,
		Severity:   quality.SeverityHigh,
		Deduction:  20,
		Threshold:  50,
		Comparison: quality.Above,
		Measure:    func(f Features) float64 { return f.LowConfidencePercentage },
		Message:    "%.1f%% of segments are low confidence (limit %.0f%%)",
	},
	{
		Kind:       KindInsufficientText,
		Severity:   quality.SeverityCritical,
		Deduction:  50,
		Threshold:  10,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return float64(f.TotalCharacters) },
		Message:    "transcript has %.0f characters (minimum %.0f)",
	},
	{
		Kind:       KindRepetitiveContent,
		Severity:   quality.SeverityMedium,
		Deduction:  15,
		Threshold:  0.3,
		Comparison: quality.Below,
		Measure:    func(f Features) float64 { return f.UniqueWordRatio },
		Guard:      func(f Features) bool { return f.TotalWords > repetitionMinWords },
		Message:    "unique word ratio %.2f (minimum %.2f)",
	},
}

var recommendations = map[string][]string{
	KindEmptySegments: {
		"Check that the source contains audible speech",
		"Enable audio enhancement to recover quiet passages",
	},
	KindLowTokenCount: {
		"Try a larger recognition model",
	},
	KindLowLanguageConf: {
		"Specify the spoken language instead of relying on auto-detection",
	},
	KindLowConfidence: {
		"Try a larger recognition model",
		"Enable audio enhancement to reduce background noise",
	},
	KindInsufficientText: {
		"Check that the source contains audible speech",
		"Verify the correct audio track was extracted",
	},
	KindRepetitiveContent: {
		"Review the transcript for repeated phrases caused by recognition loops",
		"Try a larger recognition model",
	},
}

// Recommendations maps issues to advisory strings, deduplicated in first-seen order.
func Recommendations(issues []quality.Issue) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		for _, rec := range recommendations[issue.Kind] {
			if _, ok := seen[rec]; ok {
				continue
			}
			seen[rec] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

// Analyze scores a transcript.
func Analyze(t transcript.Transcript) Report {
	features := Extract(t)
	issues := quality.Evaluate(Rules, features)
	return Report{
		Assessment:      quality.Assess(issues),
		Features:        features,
		Recommendations: Recommendations(issues),
	}
}

// Extract computes aggregate features.
func Extract(t transcript.Transcript) Features {
	features := Features{
		SegmentCount:        len(t.Segments),
		LanguageProbability: t.LanguageProbability,
	}
	tokenCounts := make([]float64, 0, len(t.Segments))
	confidences := make([]float64, 0, len(t.Segments))
	lowConfidence := 0
	fold := cases.Fold()
	vocabulary := make(map[string]struct{})

	for _, seg := range t.Segments {
		if conf, ok := seg.Confidence(); ok {
			confidences = append(confidences, conf)
			if conf < LowConfidenceThreshold {
				lowConfidence++
			}
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		features.NonEmptySegments++
		features.TotalCharacters += utf8.RuneCountInString(text)
		tokens := strings.Fields(text)
		tokenCounts = append(tokenCounts, float64(len(tokens)))
		for _, token := range tokens {
			word := strings.TrimFunc(fold.String(token), func(r rune) bool {
				return unicode.IsPunct(r) || unicode.IsSymbol(r)
			})
			if word == "" {
				continue
			}
			features.TotalWords++
			vocabulary[word] = struct{}{}
		}
	}

	if features.SegmentCount > 0 {
		features.NonEmptyPercentage = float64(features.NonEmptySegments) * 100 / float64(features.SegmentCount)
		features.LowConfidencePercentage = float64(lowConfidence) * 100 / float64(features.SegmentCount)
	}
	if len(tokenCounts) > 0 {
		features.AvgTokensPerSegment = stat.Mean(tokenCounts, nil)
	}
	if len(confidences) > 0 {
		features.MeanConfidence = stat.Mean(confidences, nil)
	}
	if features.TotalWords > 0 {
		features.UniqueWordRatio = float64(len(vocabulary)) / float64(features.TotalWords)
	} else {
		features.UniqueWordRatio = 1
	}
	return features
}
