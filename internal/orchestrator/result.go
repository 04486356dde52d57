package orchestrator

import (
	"strings"
	"time"

	"scribe/internal/audioquality"
	"scribe/internal/correction"
	"scribe/internal/enhance"
	"scribe/internal/tiers"
	"scribe/internal/transcript"
	"scribe/internal/transcriptquality"
)

// State is one step of the run state machine.
type State string

const (
	StateValidating     State = "VALIDATING"
	StateFingerprinting State = "FINGERPRINTING"
	StateAnalyzing      State = "ANALYZING"
	StateEnhancing      State = "ENHANCING"
	StateAttempting     State = "ATTEMPTING"
	StateAccepted       State = "ACCEPTED"
	StateExhausted      State = "EXHAUSTED"
	StateCorrecting     State = "CORRECTING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Warning is a non-fatal problem surfaced verbatim to the caller.
type Warning struct {
	Stage   State  `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Attempt records one recognition call.
type Attempt struct {
	Tier     string  `json:"tier"`
	Model    string  `json:"model"`
	Score    int     `json:"score,omitempty"`
	Level    string  `json:"level,omitempty"`
	Accepted bool    `json:"accepted"`
	Error    string  `json:"error,omitempty"`
	Seconds  float64 `json:"seconds"`
}

// Result is the record of one orchestration run. It doubles as the result
// cache payload.
type Result struct {
	RunID             string                    `json:"runId"`
	Fingerprint       string                    `json:"fingerprint"`
	SourcePath        string                    `json:"sourcePath"`
	Language          string                    `json:"language,omitempty"`
	AudioQuality      *audioquality.Report      `json:"audioQuality,omitempty"`
	Enhancement       *enhance.Result           `json:"enhancement,omitempty"`
	Plan              *tiers.Plan               `json:"plan,omitempty"`
	Attempts          []Attempt                 `json:"attempts"`
	AttemptedTiers    []string                  `json:"attemptedTiers"`
	ChosenTier        string                    `json:"chosenTier,omitempty"`
	TranscriptQuality *transcriptquality.Report `json:"transcriptQuality,omitempty"`
	Transcript        *transcript.Transcript    `json:"transcript,omitempty"`
	Correction        *correction.Result        `json:"correction,omitempty"`
	Warnings          []Warning                 `json:"warnings"`
	States            []State                   `json:"states"`
	Summary           string                    `json:"summary"`
	Success           bool                      `json:"success"`
	WorkingAudio      string                    `json:"workingAudio,omitempty"`
	CacheHit          bool                      `json:"cacheHit"`
	StartedAt         time.Time                 `json:"startedAt"`
	DurationSeconds   float64                   `json:"durationSeconds"`
}

func newResult(runID, path string, started time.Time) *Result {
	return &Result{
		RunID:          runID,
		SourcePath:     path,
		Attempts:       []Attempt{},
		AttemptedTiers: []string{},
		Warnings:       []Warning{},
		States:         []State{},
		StartedAt:      started,
	}
}

func (r *Result) enter(state State) {
	r.States = append(r.States, state)
}

func (r *Result) warn(stage State, kind error, message string) {
	r.Warnings = append(r.Warnings, Warning{Stage: stage, Kind: taxonomyName(kind), Message: strings.TrimSpace(message)})
}

// Final returns the transcript with any correction applied.
func (r *Result) Final() transcript.Transcript {
	if r == nil || r.Transcript == nil {
		return transcript.Transcript{}
	}
	if r.Correction != nil {
		return r.Correction.Apply(*r.Transcript)
	}
	return *r.Transcript
}

// Text returns the final plain text.
func (r *Result) Text() string {
	return r.Final().PlainText()
}

// Enhanced reports whether the recognised audio was an enhanced copy.
func (r *Result) Enhanced() bool {
	return r != nil && r.Enhancement != nil
}

// Corrected reports whether a correction was applied.
func (r *Result) Corrected() bool {
	return r != nil && r.Correction != nil
}

// Duration returns the run duration.
func (r *Result) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}
