package orchestrator

import (
	"errors"
	"fmt"

	"scribe/internal/audioquality"
	"scribe/internal/enhance"
)

// Taxonomy of run failures. Fatal ones arrive wrapped in *RunError; the
// others only ever appear as Warning kinds.
var (
	ErrFingerprint = errors.New("fingerprint failure")
	ErrAnalysis    = audioquality.ErrAnalysis
	ErrEnhancement = enhance.ErrEnhancement
	ErrRecognition = errors.New("recognition failure")
	ErrCorrection  = errors.New("correction failure")
	ErrCacheRead   = errors.New("cache read failure")
	ErrCacheWrite  = errors.New("cache write failure")
)

// RunError is a fatal run failure plus whatever had been gathered before it.
type RunError struct {
	Stage   State
	Err     error
	Partial *Result
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Summary returns the human-readable explanation for the failure.
func (e *RunError) Summary() string {
	if e == nil || e.Partial == nil {
		return ""
	}
	return e.Partial.Summary
}

// tag wraps err with marker unless it already carries it.
func tag(marker, err error) error {
	if errors.Is(err, marker) {
		return err
	}
	return fmt.Errorf("%w: %w", marker, err)
}

// taxonomyName returns the short label for a taxonomy sentinel carried by err.
func taxonomyName(err error) string {
	switch {
	case errors.Is(err, ErrFingerprint):
		return "fingerprint"
	case errors.Is(err, ErrAnalysis):
		return "analysis"
	case errors.Is(err, ErrEnhancement):
		return "enhancement"
	case errors.Is(err, ErrRecognition):
		return "recognition"
	case errors.Is(err, ErrCorrection):
		return "correction"
	case errors.Is(err, ErrCacheRead):
		return "cache_read"
	case errors.Is(err, ErrCacheWrite):
		return "cache_write"
	default:
		return "unknown"
	}
}
