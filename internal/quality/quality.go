package quality

import (
	"fmt"
	"math"
)

// Score bounds and bucket boundaries.
const (
	MaxScore = 100
	MinScore = 0

	GoodThreshold       = 80
	AcceptableThreshold = 50
	PoorThreshold       = 30
)

// Level buckets a score.
type Level string

const (
	LevelGood       Level = "GOOD"
	LevelAcceptable Level = "ACCEPTABLE"
	LevelPoor       Level = "POOR"
	LevelUnusable   Level = "UNUSABLE"
)

// Severity ranks an issue.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Issue is one detected deduction.
type Issue struct {
	Kind          string   `json:"kind"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	MeasuredValue float64  `json:"measuredValue"`
	Threshold     float64  `json:"threshold"`
	Deduction     int      `json:"deduction"`
}

// Assessment is the score-derived part of every quality report.
type Assessment struct {
	Score            int     `json:"score"`
	Level            Level   `json:"level"`
	Issues           []Issue `json:"issues"`
	NeedsEnhancement bool    `json:"needsEnhancement"`
	IsAcceptable     bool    `json:"isAcceptable"`
}

// Assess computes the assessment for the supplied issues.
func Assess(issues []Issue) Assessment {
	score := ScoreFromIssues(issues)
	out := Assessment{
		Score:            score,
		Level:            LevelFor(score),
		NeedsEnhancement: NeedsEnhancement(score),
		IsAcceptable:     IsAcceptable(score),
	}
	if len(issues) > 0 {
		out.Issues = append([]Issue(nil), issues...)
	} else {
		out.Issues = []Issue{}
	}
	return out
}

// ScoreFromIssues subtracts every deduction from MaxScore and clamps the result.
func ScoreFromIssues(issues []Issue) int {
	score := MaxScore
	for _, issue := range issues {
		score -= issue.Deduction
	}
	return Clamp(score)
}

// Clamp bounds score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// LevelFor buckets score.
func LevelFor(score int) Level {
	switch {
	case score >= GoodThreshold:
		return LevelGood
	case score >= AcceptableThreshold:
		return LevelAcceptable
	case score >= PoorThreshold:
		return LevelPoor
	default:
		return LevelUnusable
	}
}

// NeedsEnhancement reports whether audio at score should be enhanced.
func NeedsEnhancement(score int) bool {
	return score < GoodThreshold
}

// IsAcceptable reports whether score clears the acceptance gate.
func IsAcceptable(score int) bool {
	return score >= AcceptableThreshold
}

// HasSeverity reports whether any issue carries severity.
func HasSeverity(issues []Issue, severity Severity) bool {
	for _, issue := range issues {
		if issue.Severity == severity {
			return true
		}
	}
	return false
}

// Comparison selects how a rule compares its measurement to the threshold.
type Comparison int

const (
	// Below fires when the measurement is strictly less than the threshold.
	Below Comparison = iota
	// Above fires when the measurement is strictly greater than the threshold.
	Above
)

// Rule is one row of a deduction table. Measure extracts the feature from F;
// Guard, when set, must also hold for the rule to fire. Message is a format
// string receiving the measured value and the threshold.
type Rule[F any] struct {
	Kind       string
	Severity   Severity
	Deduction  int
	Threshold  float64
	Comparison Comparison
	Measure    func(F) float64
	Guard      func(F) bool
	Message    string
}

func (r Rule[F]) fires(value float64, features F) bool {
	if math.IsNaN(value) {
		return false
	}
	var breached bool
	switch r.Comparison {
	case Above:
		breached = value > r.Threshold
	default:
		breached = value < r.Threshold
	}
	if !breached {
		return false
	}
	if r.Guard != nil && !r.Guard(features) {
		return false
	}
	return true
}

// Evaluate runs every rule against features independently, preserving table order.
func Evaluate[F any](rules []Rule[F], features F) []Issue {
	issues := make([]Issue, 0, len(rules))
	for _, rule := range rules {
		if rule.Measure == nil {
			continue
		}
		value := rule.Measure(features)
		if !rule.fires(value, features) {
			continue
		}
		issues = append(issues, Issue{
			Kind:          rule.Kind,
			Severity:      rule.Severity,
			Message:       fmt.Sprintf(rule.Message, value, rule.Threshold),
			MeasuredValue: value,
			Threshold:     rule.Threshold,
			Deduction:     rule.Deduction,
		})
	}
	return issues
}
