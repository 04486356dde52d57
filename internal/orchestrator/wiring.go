package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scribe/internal/audioquality"
	"scribe/internal/config"
	"scribe/internal/correction"
	"scribe/internal/enhance"
	"scribe/internal/ffmpeg"
	"scribe/internal/fingerprint"
	"scribe/internal/language"
	"scribe/internal/media/ffprobe"
	"scribe/internal/resultcache"
	"scribe/internal/services"
	"scribe/internal/services/llm"
	"scribe/internal/services/whisper"
	"scribe/internal/tiers"
)

// OptionsFromConfig returns the run options configured on disk.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{FallbackEnabled: true}
	}
	return Options{
		Language:           cfg.Recognition.Language,
		FallbackEnabled:    cfg.Recognition.FallbackEnabled,
		ManualTier:         cfg.Recognition.ManualTier,
		EnhancementEnabled: cfg.Audio.EnhancementEnabled,
		CorrectionEnabled:  cfg.Correction.Enabled,
		LockTimeout:        time.Duration(cfg.Cache.LockTimeoutSeconds) * time.Second,
	}
}

// Runtime bundles the orchestrator with the services it was built from so
// CLI commands can reach them directly.
type Runtime struct {
	*Orchestrator
	Cache   *resultcache.Cache
	Whisper *whisper.Service
	LLM     *llm.Client
}

// NewFromConfig wires the production collaborators. hist and observer may
// be nil.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, hist HistoryRecorder, observer Observer) (*Runtime, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "config required", nil)
	}
	catalogue, err := tiers.FromConfig(cfg.Recognition.Tiers)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "tier catalogue", err)
	}

	engine := ffmpeg.New(cfg.Audio.FFmpegBinary)
	recognizer := whisper.NewService(whisper.Config{
		Command:     cfg.Recognition.Command,
		Script:      cfg.Recognition.Script,
		WorkDir:     filepath.Join(cfg.Paths.WorkDir, "whisper"),
		Device:      cfg.Recognition.Device,
		ComputeType: cfg.Recognition.ComputeType,
		BeamSize:    cfg.Recognition.BeamSize,
		VADFilter:   cfg.Recognition.VADFilter,
		Timeout:     time.Duration(cfg.Recognition.TimeoutSeconds) * time.Second,
	}, logger)

	rt := &Runtime{Whisper: recognizer}
	deps := Dependencies{
		Fingerprint: fingerprint.File,
		Analyzer:    audioquality.NewAnalyzer(engine, cfg.Audio.SilenceThresholdDB, cfg.Audio.MinSilenceSeconds),
		Enhancer:    enhance.NewEnhancer(engine, cfg.Paths.WorkDir, cfg.Audio.SilenceThresholdDB, cfg.Audio.MinSilenceSeconds, logger),
		Recognizer:  recognizer,
		Catalogue:   catalogue,
		Inspector:   ProbeInspector{Binary: cfg.Audio.FFprobeBinary},
	}

	if strings.TrimSpace(cfg.Correction.APIKey) != "" {
		llmCfg := cfg.CorrectionLLM()
		rt.LLM = llm.NewClient(llm.Config{
			APIKey:         llmCfg.APIKey,
			BaseURL:        llmCfg.BaseURL,
			Model:          llmCfg.Model,
			Referer:        llmCfg.Referer,
			Title:          llmCfg.Title,
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		})
		deps.Corrector = correction.NewEngine(rt.LLM, logger)
	}

	cache, err := resultcache.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		rt.Cache = cache
		deps.Cache = cache
	}
	if hist != nil {
		deps.History = hist
	}
	if observer != nil {
		deps.Observer = observer
	}

	orch, err := New(deps, logger)
	if err != nil {
		return nil, err
	}
	rt.Orchestrator = orch
	return rt, nil
}

// ProbeInspector describes sources with ffprobe.
type ProbeInspector struct {
	Binary string
	Run    ffprobe.Runner
}

// Describe implements SourceInspector.
func (p ProbeInspector) Describe(ctx context.Context, path string) (resultcache.Source, error) {
	binary := p.Binary
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	probe, err := ffprobe.InspectWith(ctx, p.Run, binary, path)
	if err != nil {
		return resultcache.Source{}, services.Wrap(services.ErrExternalTool, "orchestrator", "ffprobe", "", err)
	}
	src := resultcache.Source{
		Path:      path,
		Name:      filepath.Base(path),
		Container: probe.Format.FormatName,
	}
	if size, err := strconv.ParseInt(strings.TrimSpace(probe.Format.Size), 10, 64); err == nil {
		src.SizeBytes = size
	}
	if duration, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64); err == nil {
		src.DurationSeconds = duration
	}
	if stream, ok := probe.PrimaryAudio(); ok {
		src.AudioCodec = stream.CodecName
		src.SampleRate = stream.SampleRateHz()
		src.Channels = stream.Channels
		src.Language = language.ToISO2(language.ExtractFromTags(stream.Tags))
	}
	return src, nil
}
