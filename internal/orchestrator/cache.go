package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scribe/internal/history"
	"scribe/internal/logging"
	"scribe/internal/resultcache"
	"scribe/internal/services"
	"scribe/internal/subtitles"
)

// lookupCache adopts a cached result for the fingerprint. Read failures are
// recorded as warnings and treated as a miss.
func (r *run) lookupCache() bool {
	if r.o.deps.Cache == nil || r.opts.Refresh || r.cacheErr {
		return false
	}
	entry, ok, err := r.o.deps.Cache.Get(r.ctx, r.res.Fingerprint)
	if err == nil && ok {
		var cached Result
		if decodeErr := json.Unmarshal(entry.Payload, &cached); decodeErr != nil {
			err = fmt.Errorf("decode cached payload: %w", decodeErr)
		} else {
			r.adopt(cached)
			r.logger.Info("cache decision", logging.Args(logging.DecisionAttrs("cache", "hit", "fingerprint already transcribed")...)...)
			return true
		}
	}
	if err != nil {
		r.cacheErr = true
		r.res.warn(StateFingerprinting, ErrCacheRead, fmt.Sprintf("cache read failed, transcribing from scratch: %v", err))
		logging.WarnWithContext(r.logger, "cache read failed", "cache_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run scribe cache delete on the fingerprint"),
			logging.String(logging.FieldImpact, "file is processed again"),
		)
		return false
	}
	r.logger.Debug("cache decision", logging.Args(logging.DecisionAttrs("cache", "miss", "no entry for fingerprint")...)...)
	return false
}

// adopt replaces the run state with a cached result while keeping this run's
// identity.
func (r *run) adopt(cached Result) {
	current := *r.res
	*r.res = cached
	r.res.RunID = current.RunID
	r.res.SourcePath = current.SourcePath
	r.res.StartedAt = current.StartedAt
	r.res.CacheHit = true
	r.res.WorkingAudio = current.SourcePath
	r.res.Warnings = append(current.Warnings, cached.Warnings...)
	r.res.States = append(current.States, StateDone)
	if r.res.Attempts == nil {
		r.res.Attempts = []Attempt{}
	}
	if r.res.AttemptedTiers == nil {
		r.res.AttemptedTiers = []string{}
	}
	r.res.Success = true
	r.res.Summary = Summarize(r.res, nil)
}

// lock serialises runs on the same fingerprint. When the lock cannot be
// taken the run proceeds without it.
func (r *run) lock() (func(), bool) {
	noop := func() {}
	if r.o.deps.Cache == nil {
		return noop, false
	}
	timeout := r.opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lock, err := r.o.deps.Cache.Lock(r.ctx, r.res.Fingerprint, timeout)
	if err != nil {
		logging.WarnWithContext(r.logger, "cache lock unavailable", "cache_lock_failed",
			logging.Error(err),
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldErrorHint, "another run may be processing the same file"),
			logging.String(logging.FieldImpact, "file may be transcribed twice"),
		)
		return noop, false
	}
	return func() {
		if err := lock.Release(); err != nil {
			r.logger.Debug("cache lock release failed", logging.Error(err))
		}
	}, true
}

// describeSource enriches the stat-derived source record with container
// details.
func (r *run) describeSource() {
	if r.o.deps.Inspector == nil {
		return
	}
	src, err := r.o.deps.Inspector.Describe(r.ctx, r.res.SourcePath)
	if err != nil {
		logging.WarnWithContext(r.logger, "source inspection failed", "source_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffprobe"),
			logging.String(logging.FieldImpact, "cache metadata lacks container details"),
		)
		return
	}
	src.Path = r.source.Path
	src.Name = r.source.Name
	src.SizeBytes = r.source.SizeBytes
	r.source = src
}

// store writes the finished result to the cache. Failures become warnings.
func (r *run) store() {
	if r.o.deps.Cache == nil {
		return
	}
	res := r.res
	res.DurationSeconds = r.o.now().Sub(res.StartedAt).Seconds()
	final := res.Final()
	lang := final.Language
	if lang == "" {
		lang = r.language
	}
	meta := resultcache.Metadata{
		ModelTier:                 res.ChosenTier,
		Language:                  lang,
		ProcessingDurationSeconds: res.DurationSeconds,
		Source:                    r.source,
		SegmentCount:              len(final.Segments),
		Enhanced:                  res.Enhanced(),
		Corrected:                 res.Corrected(),
		Processing: map[string]any{
			"runId":          res.RunID,
			"attemptedTiers": res.AttemptedTiers,
			"warnings":       len(res.Warnings),
		},
	}
	if res.AudioQuality != nil {
		meta.AudioQualityScore = res.AudioQuality.Score
	}
	if res.TranscriptQuality != nil {
		meta.TranscriptQualityScore = res.TranscriptQuality.Score
	}
	if res.Enhancement != nil {
		meta.Processing["enhancementPreset"] = string(res.Enhancement.Preset.Name)
	}

	// Temp audio is removed by cleanup, so its paths are not cached.
	payload := *res
	payload.WorkingAudio = ""
	if res.Enhancement != nil {
		enh := *res.Enhancement
		enh.OutputPath = ""
		payload.Enhancement = &enh
	}

	loc, err := r.o.deps.Cache.Put(r.ctx, res.Fingerprint, &payload, subtitles.Render(final.Segments), meta)
	if err != nil {
		res.warn(StateDone, ErrCacheWrite, fmt.Sprintf("result not cached: %v", err))
		res.Summary = Summarize(res, nil)
		logging.WarnWithContext(r.logger, "cache write failed", "cache_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the cache dir"),
			logging.String(logging.FieldImpact, "next run on this file transcribes again"),
		)
		return
	}
	r.logger.Debug("result cached", logging.String("payload", loc.Payload))
}

// recordHistory appends the run to the history store. It runs detached from
// cancellation so interrupted runs are still recorded.
func (r *run) recordHistory(runErr error) {
	if r.o.deps.History == nil {
		return
	}
	res := r.res
	rec := history.Record{
		RunID:          res.RunID,
		Fingerprint:    res.Fingerprint,
		SourcePath:     res.SourcePath,
		Status:         history.StatusSucceeded,
		CacheHit:       res.CacheHit,
		ChosenTier:     res.ChosenTier,
		AttemptedTiers: res.AttemptedTiers,
		Enhanced:       res.Enhanced(),
		Corrected:      res.Corrected(),
		WarningCount:   len(res.Warnings),
		Summary:        res.Summary,
		StartedAt:      res.StartedAt,
		Duration:       res.Duration(),
	}
	if res.CacheHit {
		rec.Status = history.StatusCacheHit
	}
	if res.AudioQuality != nil {
		score := res.AudioQuality.Score
		rec.AudioScore = &score
		rec.AudioLevel = string(res.AudioQuality.Level)
	}
	if res.TranscriptQuality != nil {
		score := res.TranscriptQuality.Score
		rec.TranscriptScore = &score
		rec.TranscriptLevel = string(res.TranscriptQuality.Level)
	}
	if res.Enhancement != nil {
		rec.EnhancementPreset = string(res.Enhancement.Preset.Name)
	}
	if runErr != nil {
		rec.Status = history.StatusFailed
		rec.FailedStage = strings.ToLower(string(r.failed))
		rec.ErrorKind = errorKind(runErr)
		rec.ErrorMessage = runErr.Error()
	}
	if _, err := r.o.deps.History.Record(context.WithoutCancel(r.ctx), rec); err != nil {
		logging.WarnWithContext(r.logger, "history record failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database path"),
			logging.String(logging.FieldImpact, "run missing from scribe history"),
		)
	}
}

// errorKind prefers the run taxonomy and falls back to the service markers.
func errorKind(err error) string {
	if kind := taxonomyName(err); kind != "unknown" {
		return kind
	}
	return services.FailureKind(err)
}
