package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/audioquality"
	"scribe/internal/correction"
	"scribe/internal/enhance"
	"scribe/internal/history"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/resultcache"
	"scribe/internal/services"
	"scribe/internal/tiers"
	"scribe/internal/transcript"
	"scribe/internal/transcriptquality"
)

// Fingerprinter computes the content fingerprint of a file.
type Fingerprinter func(ctx context.Context, path string) (string, error)

// AudioAnalyzer scores an audio file.
type AudioAnalyzer interface {
	Analyze(ctx context.Context, path string) (audioquality.Report, error)
}

// AudioEnhancer produces an enhanced copy of an audio file.
type AudioEnhancer interface {
	Enhance(ctx context.Context, path string, preset enhance.Preset) (*enhance.Result, error)
}

// Recognizer turns audio into a transcript with one model.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, model, language string) (transcript.Transcript, error)
}

// Corrector runs the post-recognition correction pass.
type Corrector interface {
	Correct(ctx context.Context, segments []transcript.Segment, language string) (*correction.Result, error)
}

// ResultCache is the fingerprint-keyed store of finished runs.
type ResultCache interface {
	Get(ctx context.Context, fp string) (*resultcache.Entry, bool, error)
	Put(ctx context.Context, fp string, payload any, subtitles string, meta resultcache.Metadata) (resultcache.Location, error)
	Lock(ctx context.Context, fp string, timeout time.Duration) (*resultcache.Lock, error)
}

// SourceInspector describes the input container for cache metadata.
type SourceInspector interface {
	Describe(ctx context.Context, path string) (resultcache.Source, error)
}

// HistoryRecorder persists one row per run.
type HistoryRecorder interface {
	Record(ctx context.Context, rec history.Record) (int64, error)
}

// Observer receives run events for metrics.
type Observer interface {
	RunFinished(outcome string, elapsed time.Duration)
	TierAttempted(tier, result string)
	AudioScored(score int)
	TranscriptScored(score int)
	Enhanced(preset string, ok bool)
	Corrected(ok bool)
}

// Dependencies are the collaborators of a run. Cache, Inspector, History,
// Observer, Enhancer and Corrector are optional.
type Dependencies struct {
	Fingerprint Fingerprinter
	Analyzer    AudioAnalyzer
	Enhancer    AudioEnhancer
	Recognizer  Recognizer
	Corrector   Corrector
	Catalogue   tiers.Catalogue
	Cache       ResultCache
	Inspector   SourceInspector
	History     HistoryRecorder
	Observer    Observer
}

// Options tune a single run.
type Options struct {
	// Language is a hint passed to recognition; empty or "auto" detects.
	Language           string
	FallbackEnabled    bool
	ManualTier         string
	EnhancementEnabled bool
	CorrectionEnabled  bool
	// Refresh skips the cache lookup but still stores the new result.
	Refresh     bool
	LockTimeout time.Duration
}

// DefaultLockTimeout bounds the wait for a concurrent run on the same input.
const DefaultLockTimeout = 10 * time.Minute

// Orchestrator runs transcription requests.
type Orchestrator struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New validates deps and returns an orchestrator.
func New(deps Dependencies, logger *slog.Logger) (*Orchestrator, error) {
	if deps.Fingerprint == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "fingerprinter required", nil)
	}
	if deps.Analyzer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "audio analyzer required", nil)
	}
	if deps.Recognizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "recognizer required", nil)
	}
	if deps.Catalogue.Len() == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "tier catalogue is empty", nil)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Orchestrator{
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "orchestrator"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Catalogue returns the tier catalogue in use.
func (o *Orchestrator) Catalogue() tiers.Catalogue {
	return o.deps.Catalogue
}

// Run processes one file. A fatal failure is returned as *RunError together
// with the partial result; the returned *Result is never nil.
func (o *Orchestrator) Run(ctx context.Context, path string, opts Options) (*Result, error) {
	started := o.now()
	runID := o.newID()
	ctx = services.WithRunID(ctx, runID)

	r := &run{
		o:      o,
		ctx:    ctx,
		opts:   opts,
		res:    newResult(runID, strings.TrimSpace(path), started),
		logger: logging.WithContext(ctx, o.logger),
	}
	defer r.cleanup()

	err := r.execute()
	r.res.DurationSeconds = o.now().Sub(started).Seconds()
	r.finish(err)
	if err != nil {
		return r.res, err
	}
	return r.res, nil
}

// run holds the state of one orchestration.
type run struct {
	o        *Orchestrator
	ctx      context.Context
	opts     Options
	res      *Result
	logger   *slog.Logger
	language string
	source   resultcache.Source
	enhanced *enhance.Result
	failed   State
	// cacheErr is set after the first failed read so a re-check stays quiet.
	cacheErr bool
}

func (r *run) execute() error {
	r.res.enter(StateValidating)
	if err := r.validate(); err != nil {
		return r.fail(StateValidating, err)
	}

	r.res.enter(StateFingerprinting)
	fp, err := r.o.deps.Fingerprint(r.ctx, r.res.SourcePath)
	if err != nil {
		return r.fail(StateFingerprinting, tag(ErrFingerprint, err))
	}
	r.res.Fingerprint = fp
	r.logger = r.logger.With(logging.String(logging.FieldFingerprint, fp))

	if r.lookupCache() {
		return nil
	}
	release, locked := r.lock()
	defer release()
	if locked && r.lookupCache() {
		return nil
	}

	r.describeSource()

	r.res.enter(StateAnalyzing)
	report, err := r.o.deps.Analyzer.Analyze(r.stageCtx(StateAnalyzing), r.res.SourcePath)
	if err != nil {
		return r.fail(StateAnalyzing, tag(ErrAnalysis, err))
	}
	r.res.AudioQuality = &report
	r.o.deps.Observer.AudioScored(report.Score)
	r.logger.Info("audio quality assessed",
		logging.String("level", string(report.Level)),
		logging.Int("score", report.Score),
		logging.Int("issues", len(report.Issues)),
		logging.Bool("needs_enhancement", report.NeedsEnhancement),
	)

	working := r.enhance(report)
	r.res.WorkingAudio = working

	plan, err := r.plan(report.Score)
	if err != nil {
		return r.fail(StateAttempting, tag(ErrRecognition, err))
	}
	r.res.Plan = &plan
	r.logger.Info("recognition plan selected",
		logging.Args(append(logging.DecisionAttrsWithOptions("tier_plan", strings.Join(plan.Names(), ","), plan.Reason, strings.Join(r.o.deps.Catalogue.Names(), ",")),
			logging.Int("audio_score", plan.Score))...)...,
	)

	if err := r.attempt(plan, working); err != nil {
		return err
	}

	r.correct()

	r.res.enter(StateDone)
	r.res.Success = true
	r.res.Summary = Summarize(r.res, nil)
	r.store()
	return nil
}

func (r *run) validate() error {
	if r.res.SourcePath == "" {
		return services.Wrap(services.ErrValidation, "orchestrator", "validate", "input path is empty", nil)
	}
	info, err := os.Stat(r.res.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrNotFound, "orchestrator", "validate", "input file does not exist", err)
		}
		return services.Wrap(services.ErrValidation, "orchestrator", "validate", "stat input", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "orchestrator", "validate", "input is a directory", nil)
	}
	r.source = resultcache.Source{
		Path:      r.res.SourcePath,
		Name:      info.Name(),
		SizeBytes: info.Size(),
	}
	hint, err := language.Hint(r.opts.Language)
	if err != nil {
		return services.Wrap(services.ErrValidation, "orchestrator", "validate", "language hint", err)
	}
	r.language = hint
	r.res.Language = hint
	if !r.opts.FallbackEnabled {
		name := strings.TrimSpace(r.opts.ManualTier)
		if name == "" {
			return services.Wrap(services.ErrValidation, "orchestrator", "validate", "fallback disabled but no manual tier given", nil)
		}
		if _, ok := r.o.deps.Catalogue.Lookup(name); !ok {
			return services.Wrap(services.ErrValidation, "orchestrator", "validate", fmt.Sprintf("unknown tier %q", name), nil)
		}
	}
	return nil
}

func (r *run) stageCtx(state State) context.Context {
	return services.WithStage(r.ctx, strings.ToLower(string(state)))
}

func (r *run) enhance(report audioquality.Report) string {
	original := r.res.SourcePath
	if !report.NeedsEnhancement {
		r.logger.Info("enhancement decision", logging.Args(logging.DecisionAttrs("enhancement", "skipped", "audio quality sufficient")...)...)
		return original
	}
	if !r.opts.EnhancementEnabled || r.o.deps.Enhancer == nil {
		r.logger.Info("enhancement decision", logging.Args(logging.DecisionAttrs("enhancement", "skipped", "enhancement disabled")...)...)
		return original
	}

	r.res.enter(StateEnhancing)
	preset := enhance.SelectPreset(report)
	r.logger.Info("enhancement decision",
		logging.Args(append(logging.DecisionAttrs("enhancement", string(preset.Name), fmt.Sprintf("audio %s at %d", report.Level, report.Score)),
			logging.Int("score", report.Score))...)...,
	)
	enhanced, err := r.o.deps.Enhancer.Enhance(r.stageCtx(StateEnhancing), original, preset)
	if err != nil {
		r.o.deps.Observer.Enhanced(string(preset.Name), false)
		r.res.warn(StateEnhancing, ErrEnhancement, fmt.Sprintf("enhancement with %s preset failed, using original audio: %v", preset.Name, err))
		logging.WarnWithContext(r.logger, "enhancement failed", "enhancement_failed",
			logging.String("preset", string(preset.Name)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg filter support"),
			logging.String(logging.FieldImpact, "recognition runs on the original audio"),
		)
		return original
	}
	r.enhanced = enhanced
	r.res.Enhancement = enhanced
	r.o.deps.Observer.Enhanced(string(preset.Name), true)
	r.logger.Info("audio enhanced",
		logging.String("preset", string(preset.Name)),
		logging.Bool("trimmed", enhanced.Trimmed),
		logging.String("output", enhanced.OutputPath),
	)
	return enhanced.OutputPath
}

func (r *run) plan(score int) (tiers.Plan, error) {
	if !r.opts.FallbackEnabled {
		return r.o.deps.Catalogue.Manual(strings.TrimSpace(r.opts.ManualTier), score)
	}
	return r.o.deps.Catalogue.Plan(score), nil
}

func (r *run) attempt(plan tiers.Plan, audioPath string) error {
	ctx := r.stageCtx(StateAttempting)
	for i, tier := range plan.Candidates {
		last := i == len(plan.Candidates)-1
		r.res.enter(StateAttempting)
		r.res.AttemptedTiers = append(r.res.AttemptedTiers, tier.Name)
		logger := r.logger.With(logging.String(logging.FieldTier, tier.Name))
		logger.Info("recognition attempt started",
			logging.Int("attempt", i+1),
			logging.Int("candidates", len(plan.Candidates)),
			logging.String("model", tier.Model),
		)

		begin := r.o.now()
		out, err := r.o.deps.Recognizer.Transcribe(ctx, audioPath, tier.Model, r.language)
		record := Attempt{Tier: tier.Name, Model: tier.Model, Seconds: r.o.now().Sub(begin).Seconds()}
		if err != nil {
			record.Error = err.Error()
			r.res.Attempts = append(r.res.Attempts, record)
			r.o.deps.Observer.TierAttempted(tier.Name, "failed")
			if last || r.ctx.Err() != nil {
				return r.fail(StateAttempting, fmt.Errorf("%w: tier %s: %w", ErrRecognition, tier.Name, err))
			}
			r.res.warn(StateAttempting, ErrRecognition, fmt.Sprintf("tier %s failed: %v", tier.Name, err))
			logging.WarnWithContext(logger, "recognition attempt failed", "recognition_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the recognition runner output"),
				logging.String(logging.FieldImpact, "falling back to the next tier"),
			)
			continue
		}

		transcript.NumberSegments(out.Segments)
		report := transcriptquality.Analyze(out)
		record.Score = report.Score
		record.Level = string(report.Level)
		record.Accepted = report.IsAcceptable
		r.res.Attempts = append(r.res.Attempts, record)
		r.res.Transcript = &out
		r.res.TranscriptQuality = &report
		r.res.ChosenTier = tier.Name
		r.o.deps.Observer.TranscriptScored(report.Score)

		if report.IsAcceptable {
			r.o.deps.Observer.TierAttempted(tier.Name, "accepted")
			r.res.enter(StateAccepted)
			logger.Info("recognition decision",
				logging.Args(append(logging.DecisionAttrs("tier_acceptance", "accepted", fmt.Sprintf("transcript %s at %d", report.Level, report.Score)),
					logging.Int("segments", len(out.Segments)))...)...,
			)
			return nil
		}
		r.o.deps.Observer.TierAttempted(tier.Name, "rejected")
		reason := fmt.Sprintf("transcript %s at %d", report.Level, report.Score)
		if last {
			r.res.enter(StateExhausted)
			logger.Info("recognition decision", logging.Args(append(logging.DecisionAttrs("tier_acceptance", "best_effort", reason),
				logging.Alert("no_acceptable_tier"))...)...)
			return nil
		}
		logger.Info("recognition decision", logging.Args(logging.DecisionAttrs("tier_acceptance", "rejected", reason)...)...)
	}
	return nil
}

func (r *run) correct() {
	report := r.res.TranscriptQuality
	if report == nil || report.IsAcceptable {
		return
	}
	if !r.opts.CorrectionEnabled || r.o.deps.Corrector == nil {
		r.logger.Info("correction decision", logging.Args(logging.DecisionAttrs("correction", "skipped", "correction disabled")...)...)
		return
	}
	r.res.enter(StateCorrecting)
	lang := r.language
	if lang == "" {
		lang = language.ToISO2(r.res.Transcript.Language)
	}
	r.logger.Info("correction decision", logging.Args(logging.DecisionAttrs("correction", "run", fmt.Sprintf("transcript %s at %d", report.Level, report.Score))...)...)
	result, err := r.o.deps.Corrector.Correct(r.stageCtx(StateCorrecting), r.res.Transcript.Segments, lang)
	if err != nil {
		r.o.deps.Observer.Corrected(false)
		r.res.warn(StateCorrecting, ErrCorrection, fmt.Sprintf("correction failed, keeping uncorrected transcript: %v", err))
		logging.WarnWithContext(r.logger, "correction failed", "correction_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the correction endpoint and API key"),
			logging.String(logging.FieldImpact, "uncorrected transcript returned"),
		)
		return
	}
	r.res.Correction = result
	r.o.deps.Observer.Corrected(true)
	r.logger.Info("transcript corrected",
		logging.Int("corrected_segments", result.Statistics.CorrectedSegments),
		logging.Int("changes", result.Statistics.TotalChanges),
	)
}

func (r *run) fail(stage State, err error) error {
	r.failed = stage
	r.res.enter(StateFailed)
	r.res.Success = false
	r.res.Summary = Summarize(r.res, err)
	logging.ErrorWithContext(r.logger, "transcription run failed", "run_failed",
		logging.String(logging.FieldStage, strings.ToLower(string(stage))),
		logging.String("error_kind", taxonomyName(err)),
		logging.Error(err),
	)
	return &RunError{Stage: stage, Err: err, Partial: r.res}
}

func (r *run) cleanup() {
	if r.enhanced != nil {
		r.enhanced.Cleanup()
	}
}

func (r *run) finish(err error) {
	outcome := "succeeded"
	switch {
	case err != nil:
		outcome = "failed"
	case r.res.CacheHit:
		outcome = "cache_hit"
	}
	r.o.deps.Observer.RunFinished(outcome, r.res.Duration())
	r.logger.Info("transcription run finished",
		logging.String("outcome", outcome),
		logging.String("chosen_tier", r.res.ChosenTier),
		logging.Int("warnings", len(r.res.Warnings)),
		logging.Duration("duration", r.res.Duration()),
	)
	r.recordHistory(err)
}

type nopObserver struct{}

func (nopObserver) RunFinished(string, time.Duration) {}
func (nopObserver) TierAttempted(string, string)      {}
func (nopObserver) AudioScored(int)                   {}
func (nopObserver) TranscriptScored(int)              {}
func (nopObserver) Enhanced(string, bool)             {}
func (nopObserver) Corrected(bool)                    {}
