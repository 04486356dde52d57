package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/ffmpeg"
	"scribe/internal/logging"
)

// ErrEnhancement marks a failed enhancement pass.
var ErrEnhancement = errors.New("audio enhancement failed")

// TrimSilencePercentage is the silence share above which a trim pass follows the preset.
const TrimSilencePercentage = 50.0

// Engine is the subset of the ffmpeg client used for enhancement.
type Engine interface {
	Apply(ctx context.Context, input, output string, filters []ffmpeg.Filter) error
	SilenceDetect(ctx context.Context, input string, thresholdDB, minSeconds float64) (ffmpeg.Silence, error)
}

// Result describes one enhancement run.
type Result struct {
	Preset            Preset  `json:"preset"`
	Filters           string  `json:"filters"`
	InputPath         string  `json:"inputPath"`
	OutputPath        string  `json:"outputPath"`
	SilencePercentage float64 `json:"silencePercentage"`
	Trimmed           bool    `json:"trimmed"`

	tempDir string
}

// Cleanup removes every temporary file the run created.
func (r *Result) Cleanup() {
	if r == nil || r.tempDir == "" {
		return
	}
	_ = os.RemoveAll(r.tempDir)
	r.tempDir = ""
}

// Enhancer applies presets through the ffmpeg engine.
type Enhancer struct {
	engine      Engine
	workDir     string
	thresholdDB float64
	minSilence  float64
	logger      *slog.Logger
}

// NewEnhancer builds an enhancer that writes intermediates under workDir
// (the system temp directory when empty).
func NewEnhancer(engine Engine, workDir string, thresholdDB, minSilenceSeconds float64, logger *slog.Logger) *Enhancer {
	if thresholdDB == 0 {
		thresholdDB = -50
	}
	if minSilenceSeconds <= 0 {
		minSilenceSeconds = 0.5
	}
	return &Enhancer{
		engine:      engine,
		workDir:     workDir,
		thresholdDB: thresholdDB,
		minSilence:  minSilenceSeconds,
		logger:      logging.NewComponentLogger(logger, "enhance"),
	}
}

// Enhance filters audioPath with preset and returns the enhanced file. On
// failure every intermediate is removed before returning.
func (e *Enhancer) Enhance(ctx context.Context, audioPath string, preset Preset) (*Result, error) {
	if e == nil || e.engine == nil {
		return nil, fmt.Errorf("%w: enhancer not configured", ErrEnhancement)
	}
	if strings.TrimSpace(audioPath) == "" {
		return nil, fmt.Errorf("%w: audio path required", ErrEnhancement)
	}
	if e.workDir != "" {
		if err := os.MkdirAll(e.workDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: ensure work dir: %w", ErrEnhancement, err)
		}
	}
	tempDir, err := os.MkdirTemp(e.workDir, "enhance-")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %w", ErrEnhancement, err)
	}
	result := &Result{
		Preset:    preset,
		Filters:   ffmpeg.Chain(preset.Filters()),
		InputPath: audioPath,
		tempDir:   tempDir,
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	filtered := filepath.Join(tempDir, base+"."+strings.ToLower(string(preset.Name))+".wav")
	if err := e.engine.Apply(ctx, audioPath, filtered, preset.Filters()); err != nil {
		result.Cleanup()
		return nil, fmt.Errorf("%w: %s preset: %w", ErrEnhancement, preset.Name, err)
	}
	result.OutputPath = filtered

	silence, err := e.engine.SilenceDetect(ctx, filtered, e.thresholdDB, e.minSilence)
	if err != nil {
		logging.WarnWithContext(e.logger, "post-filter silence check failed; skipping trim", "enhance_silence_check_failed",
			logging.String("path", filtered),
			logging.Error(err),
			logging.String(logging.FieldImpact, "silence is not trimmed from the enhanced audio"),
		)
		return result, nil
	}
	if silence.Duration > 0 {
		result.SilencePercentage = silence.Total() * 100 / silence.Duration
	}
	if result.SilencePercentage <= TrimSilencePercentage {
		return result, nil
	}

	trimmed := filepath.Join(tempDir, base+".trimmed.wav")
	if err := e.engine.Apply(ctx, filtered, trimmed, TrimFilters(e.thresholdDB, e.minSilence)); err != nil {
		result.Cleanup()
		return nil, fmt.Errorf("%w: silence trim: %w", ErrEnhancement, err)
	}
	_ = os.Remove(filtered)
	result.OutputPath = trimmed
	result.Trimmed = true
	e.logger.Debug("silence trimmed after enhancement",
		logging.String("preset", string(preset.Name)),
		logging.Float64("silence_percentage", result.SilencePercentage),
	)
	return result, nil
}
