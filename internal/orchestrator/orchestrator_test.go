package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/internal/audioquality"
	"scribe/internal/correction"
	"scribe/internal/enhance"
	"scribe/internal/ffmpeg"
	"scribe/internal/fingerprint"
	"scribe/internal/history"
	"scribe/internal/logging"
	"scribe/internal/resultcache"
	"scribe/internal/testsupport"
	"scribe/internal/tiers"
	"scribe/internal/transcript"
)

var (
	goodAudio = audioquality.Score(audioquality.Features{
		MeanVolumeDB: -20, PeakVolumeDB: -5, Duration: 60,
		SilenceDuration: 6, SpeechDuration: 54, SilencePercentage: 10,
	})
	quietPeakAudio = audioquality.Score(audioquality.Features{
		MeanVolumeDB: -30, PeakVolumeDB: -25, Duration: 60,
		SilenceDuration: 6, SpeechDuration: 54, SilencePercentage: 10,
	})
)

func goodTranscript() transcript.Transcript {
	return transcript.Transcript{
		Language:            "en",
		LanguageProbability: 0.97,
		Segments: []transcript.Segment{
			{ID: 0, Start: 0, End: 2, Text: "the quick brown fox jumps"},
			{ID: 1, Start: 2, End: 4, Text: "over the lazy sleeping dog"},
		},
	}
}

// sixtyTranscript scores 60: only a quarter of its segments carry text.
func sixtyTranscript() transcript.Transcript {
	return transcript.Transcript{
		Language:            "en",
		LanguageProbability: 0.9,
		Segments: []transcript.Segment{
			{ID: 0, Start: 0, End: 2, Text: "the quick brown fox jumps over"},
			{ID: 1, Start: 2, End: 3},
			{ID: 2, Start: 3, End: 4},
			{ID: 3, Start: 4, End: 5},
		},
	}
}

func poorTranscript() transcript.Transcript {
	return transcript.Transcript{
		Language:            "en",
		LanguageProbability: 0.2,
		Segments:            []transcript.Segment{{ID: 0, Start: 0, End: 1, Text: "uh"}},
	}
}

type fakeAnalyzer struct {
	report audioquality.Report
	err    error
}

func (f fakeAnalyzer) Analyze(context.Context, string) (audioquality.Report, error) {
	return f.report, f.err
}

type recognition struct {
	out transcript.Transcript
	err error
}

type fakeRecognizer struct {
	mu      sync.Mutex
	results map[string]recognition
	calls   []string
	paths   []string
	langs   []string
}

func (f *fakeRecognizer) Transcribe(_ context.Context, audioPath, model, lang string) (transcript.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	f.paths = append(f.paths, audioPath)
	f.langs = append(f.langs, lang)
	r, ok := f.results[model]
	if !ok {
		return transcript.Transcript{}, errors.New("unexpected model " + model)
	}
	return r.out, r.err
}

type fakeEnhancer struct {
	out   string
	err   error
	calls []enhance.PresetName
}

func (f *fakeEnhancer) Enhance(_ context.Context, path string, preset enhance.Preset) (*enhance.Result, error) {
	f.calls = append(f.calls, preset.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &enhance.Result{Preset: preset, InputPath: path, OutputPath: f.out}, nil
}

type fakeCorrector struct {
	err   error
	calls int
}

func (f *fakeCorrector) Correct(_ context.Context, segments []transcript.Segment, lang string) (*correction.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]correction.Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, correction.Segment{ID: seg.ID, Start: seg.Start, End: seg.End, OriginalText: seg.Text, CorrectedText: strings.ToUpper(seg.Text), Changes: []string{"case"}})
	}
	return &correction.Result{
		Segments:   out,
		Summary:    "uppercased",
		Language:   lang,
		Statistics: correction.Statistics{TotalSegments: len(out), CorrectedSegments: len(out), TotalChanges: len(out), Batches: 1},
	}, nil
}

type fakeObserver struct {
	outcomes []string
	tiers    []string
	enhanced []bool
}

func (f *fakeObserver) RunFinished(outcome string, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeObserver) TierAttempted(tier, result string) { f.tiers = append(f.tiers, tier+":"+result) }
func (f *fakeObserver) AudioScored(int)                   {}
func (f *fakeObserver) TranscriptScored(int)              {}
func (f *fakeObserver) Enhanced(_ string, ok bool)        { f.enhanced = append(f.enhanced, ok) }
func (f *fakeObserver) Corrected(bool)                    {}

type fakeHistory struct {
	records []history.Record
}

func (f *fakeHistory) Record(_ context.Context, rec history.Record) (int64, error) {
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

type brokenCache struct {
	getErr error
	putErr error
}

func (b brokenCache) Get(context.Context, string) (*resultcache.Entry, bool, error) {
	return nil, false, b.getErr
}

func (b brokenCache) Put(context.Context, string, any, string, resultcache.Metadata) (resultcache.Location, error) {
	return resultcache.Location{}, b.putErr
}

func (b brokenCache) Lock(context.Context, string, time.Duration) (*resultcache.Lock, error) {
	return &resultcache.Lock{}, nil
}

func testCatalogue(t *testing.T) tiers.Catalogue {
	t.Helper()
	c, err := tiers.New([]tiers.Tier{
		{Name: "base", Model: "base", MinAudioQuality: 50},
		{Name: "small", Model: "small", MinAudioQuality: 30},
		{Name: "medium", Model: "medium", MinAudioQuality: 0},
	})
	if err != nil {
		t.Fatalf("tiers.New: %v", err)
	}
	return c
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	testsupport.WriteFile(t, path, 2048)
	return path
}

func newTestOrchestrator(t *testing.T, deps Dependencies) *Orchestrator {
	t.Helper()
	if deps.Fingerprint == nil {
		deps.Fingerprint = fingerprint.File
	}
	if deps.Catalogue.Len() == 0 {
		deps.Catalogue = testCatalogue(t)
	}
	o, err := New(deps, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func defaultOptions() Options {
	return Options{FallbackEnabled: true, EnhancementEnabled: true}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Dependencies{}, logging.NewNop()); err == nil {
		t.Fatal("expected error without collaborators")
	}
	_, err := New(Dependencies{
		Fingerprint: fingerprint.File,
		Analyzer:    fakeAnalyzer{},
		Recognizer:  &fakeRecognizer{},
	}, logging.NewNop())
	if err == nil {
		t.Fatal("expected error for empty catalogue")
	}
}

func TestRunGoodAudioAcceptsCheapestTier(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{
		"tiny": {out: goodTranscript()},
		"base": {out: goodTranscript()},
	}}
	enh := &fakeEnhancer{}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: goodAudio},
		Enhancer:   enh,
		Recognizer: rec,
		Catalogue:  tiers.Default(),
	})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AudioQuality.Score != 100 || res.AudioQuality.NeedsEnhancement {
		t.Fatalf("unexpected audio report %+v", res.AudioQuality.Assessment)
	}
	if len(enh.calls) != 0 || res.Enhancement != nil {
		t.Fatalf("enhancement should be skipped, got %v", enh.calls)
	}
	if res.Plan.Candidates[0].Name != "tiny" {
		t.Fatalf("expected plan to start at tiny, got %v", res.Plan.Names())
	}
	if !reflect.DeepEqual(rec.calls, []string{"tiny"}) || res.ChosenTier != "tiny" {
		t.Fatalf("expected a single tiny attempt, got %v", rec.calls)
	}
	want := []State{StateValidating, StateFingerprinting, StateAnalyzing, StateAttempting, StateAccepted, StateDone}
	if !reflect.DeepEqual(res.States, want) {
		t.Fatalf("states = %v, want %v", res.States, want)
	}
	if !res.Success || !strings.Contains(res.Summary, "first attempt") {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if !fingerprint.Valid(res.Fingerprint) || res.RunID == "" {
		t.Fatalf("missing identity: fp=%q run=%q", res.Fingerprint, res.RunID)
	}
}

func TestRunQuietAudioIsEnhancedAggressively(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}}
	enh := &fakeEnhancer{out: "/work/enhanced.wav"}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: quietPeakAudio},
		Enhancer:   enh,
		Recognizer: rec,
	})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AudioQuality.Score > 60 || !res.AudioQuality.NeedsEnhancement {
		t.Fatalf("expected score <= 60 needing enhancement, got %+v", res.AudioQuality.Assessment)
	}
	if !reflect.DeepEqual(enh.calls, []enhance.PresetName{enhance.PresetAggressive}) {
		t.Fatalf("expected AGGRESSIVE preset, got %v", enh.calls)
	}
	if rec.paths[0] != "/work/enhanced.wav" || res.WorkingAudio != "/work/enhanced.wav" {
		t.Fatalf("recognition should use enhanced audio, got %v", rec.paths)
	}
	if !strings.Contains(res.Summary, "AGGRESSIVE") {
		t.Fatalf("summary should mention the preset: %q", res.Summary)
	}
}

func TestRunStopsAtFirstAcceptableTier(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{
		"base":   {out: poorTranscript()},
		"small":  {out: sixtyTranscript()},
		"medium": {out: goodTranscript()},
	}}
	obs := &fakeObserver{}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: goodAudio},
		Recognizer: rec,
		Observer:   obs,
	})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(rec.calls, []string{"base", "small"}) {
		t.Fatalf("expected no third attempt, got %v", rec.calls)
	}
	if res.ChosenTier != "small" || res.TranscriptQuality.Score != 60 || !res.TranscriptQuality.IsAcceptable {
		t.Fatalf("unexpected outcome tier=%s report=%+v", res.ChosenTier, res.TranscriptQuality.Assessment)
	}
	if !reflect.DeepEqual(res.AttemptedTiers, []string{"base", "small"}) {
		t.Fatalf("attempted = %v", res.AttemptedTiers)
	}
	if !reflect.DeepEqual(obs.tiers, []string{"base:rejected", "small:accepted"}) {
		t.Fatalf("observer tiers = %v", obs.tiers)
	}
	if res.Attempts[0].Accepted || !res.Attempts[1].Accepted {
		t.Fatalf("attempt records = %+v", res.Attempts)
	}
}

func TestRunKeepsBestEffortWhenEveryTierRejected(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{
		"base":   {out: poorTranscript()},
		"small":  {out: poorTranscript()},
		"medium": {out: poorTranscript()},
	}}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: rec})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || res.ChosenTier != "medium" || res.Transcript == nil {
		t.Fatalf("expected best-effort medium result, got success=%v tier=%s", res.Success, res.ChosenTier)
	}
	if res.States[len(res.States)-2] != StateExhausted {
		t.Fatalf("expected EXHAUSTED before DONE, got %v", res.States)
	}
	if !strings.Contains(res.Summary, "all rejected, best-effort result from medium kept") {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if !strings.Contains(res.Summary, "Recommendations:") {
		t.Fatalf("summary should carry recommendations: %q", res.Summary)
	}
}

func TestRunFlagsExhaustedLadderInLogs(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{
		"base":   {out: poorTranscript()},
		"small":  {out: poorTranscript()},
		"medium": {out: poorTranscript()},
	}}
	var buf bytes.Buffer
	o, err := New(Dependencies{
		Fingerprint: fingerprint.File,
		Analyzer:    fakeAnalyzer{report: goodAudio},
		Recognizer:  rec,
		Catalogue:   testCatalogue(t),
	}, slog.New(slog.NewJSONHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := o.Run(context.Background(), writeInput(t), defaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(buf.String(), `"alert":"no_acceptable_tier"`) {
		t.Fatalf("expected alert in logs:\n%s", buf.String())
	}
}

func TestRunRecognitionFailureFallsThrough(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{
		"base":  {err: errors.New("runner crashed")},
		"small": {out: goodTranscript()},
	}}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: rec})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ChosenTier != "small" {
		t.Fatalf("chosen = %s", res.ChosenTier)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != "recognition" {
		t.Fatalf("expected one recognition warning, got %+v", res.Warnings)
	}
	if res.Attempts[0].Error == "" {
		t.Fatalf("failed attempt should record its error: %+v", res.Attempts[0])
	}
}

func TestRunLastTierFailureIsFatal(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{
		"base":   {out: poorTranscript()},
		"small":  {out: poorTranscript()},
		"medium": {err: errors.New("out of memory")},
	}}
	hist := &fakeHistory{}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: rec, History: hist})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if !errors.Is(err, ErrRecognition) {
		t.Fatalf("expected ErrRecognition, got %v", err)
	}
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Stage != StateAttempting {
		t.Fatalf("expected RunError at ATTEMPTING, got %#v", err)
	}
	if runErr.Partial != res || res.AudioQuality == nil || res.Success {
		t.Fatalf("partial result should carry the audio report")
	}
	if !strings.Contains(res.Summary, "3 tiers") || !strings.Contains(res.Summary, "last attempt failed") {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if len(hist.records) != 1 || hist.records[0].Status != history.StatusFailed || hist.records[0].FailedStage != "attempting" {
		t.Fatalf("unexpected history %+v", hist.records)
	}
	if hist.records[0].ErrorKind != "recognition" {
		t.Fatalf("error kind = %q", hist.records[0].ErrorKind)
	}
}

func TestRunAnalysisFailureIsFatal(t *testing.T) {
	rec := &fakeRecognizer{}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{err: errors.New("no volumedetect output")},
		Recognizer: rec,
	})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("expected ErrAnalysis, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("recognition must not run, got %v", rec.calls)
	}
	if !strings.Contains(res.Summary, "recognition not attempted") {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
}

func TestRunFingerprintFailureIsFatal(t *testing.T) {
	rec := &fakeRecognizer{}
	o := newTestOrchestrator(t, Dependencies{
		Fingerprint: func(context.Context, string) (string, error) { return "", errors.New("read error") },
		Analyzer:    fakeAnalyzer{report: goodAudio},
		Recognizer:  rec,
	})
	_, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if !errors.Is(err, ErrFingerprint) {
		t.Fatalf("expected ErrFingerprint, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatal("no external call expected after fingerprint failure")
	}
}

func TestRunEnhancementFailureUsesOriginalAudio(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}}
	obs := &fakeObserver{}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: quietPeakAudio},
		Enhancer:   &fakeEnhancer{err: errors.New("filter not found")},
		Recognizer: rec,
		Observer:   obs,
	})
	input := writeInput(t)

	res, err := o.Run(context.Background(), input, defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.paths[0] != input {
		t.Fatalf("expected original audio, got %s", rec.paths[0])
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != "enhancement" {
		t.Fatalf("expected enhancement warning, got %+v", res.Warnings)
	}
	if !reflect.DeepEqual(obs.enhanced, []bool{false}) {
		t.Fatalf("observer enhanced = %v", obs.enhanced)
	}
}

func TestRunEnhancementDisabled(t *testing.T) {
	enh := &fakeEnhancer{out: "/work/enhanced.wav"}
	rec := &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: quietPeakAudio}, Enhancer: enh, Recognizer: rec})
	opts := defaultOptions()
	opts.EnhancementEnabled = false
	if _, err := o.Run(context.Background(), writeInput(t), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(enh.calls) != 0 {
		t.Fatalf("enhancer should not run, got %v", enh.calls)
	}
}

type fakeEngine struct{}

func (fakeEngine) Apply(_ context.Context, _, output string, _ []ffmpeg.Filter) error {
	return os.WriteFile(output, []byte("pcm"), 0o644)
}

func (fakeEngine) SilenceDetect(context.Context, string, float64, float64) (ffmpeg.Silence, error) {
	return ffmpeg.Silence{Duration: 10}, nil
}

func TestRunRemovesEnhancedAudio(t *testing.T) {
	work := t.TempDir()
	for _, fail := range []bool{false, true} {
		recognized := recognition{out: goodTranscript()}
		if fail {
			recognized = recognition{err: errors.New("crash")}
		}
		rec := &fakeRecognizer{results: map[string]recognition{"medium": recognized}}
		o := newTestOrchestrator(t, Dependencies{
			Analyzer:   fakeAnalyzer{report: quietPeakAudio},
			Enhancer:   enhance.NewEnhancer(fakeEngine{}, work, -50, 0.5, logging.NewNop()),
			Recognizer: rec,
		})
		opts := defaultOptions()
		opts.FallbackEnabled = false
		opts.ManualTier = "medium"

		res, err := o.Run(context.Background(), writeInput(t), opts)
		if fail != (err != nil) {
			t.Fatalf("fail=%v err=%v", fail, err)
		}
		if res.Enhancement == nil {
			t.Fatal("expected enhancement record")
		}
		if _, statErr := os.Stat(res.Enhancement.OutputPath); !os.IsNotExist(statErr) {
			t.Fatalf("enhanced audio should be removed (fail=%v), stat err=%v", fail, statErr)
		}
	}
	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work dir should be empty, found %d entries", len(entries))
	}
}

func TestRunManualTier(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{"small": {out: poorTranscript()}}}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: rec})
	opts := defaultOptions()
	opts.FallbackEnabled = false
	opts.ManualTier = "small"

	res, err := o.Run(context.Background(), writeInput(t), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(rec.calls, []string{"small"}) || res.Plan.Reason != tiers.ReasonManual {
		t.Fatalf("expected one manual attempt, got %v (%s)", rec.calls, res.Plan.Reason)
	}

	opts.ManualTier = "enormous"
	_, err = o.Run(context.Background(), writeInput(t), opts)
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Stage != StateValidating {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestRunValidation(t *testing.T) {
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: &fakeRecognizer{}})
	tests := []struct {
		name string
		path string
		opts Options
	}{
		{name: "empty path", path: "", opts: defaultOptions()},
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.wav"), opts: defaultOptions()},
		{name: "directory", path: t.TempDir(), opts: defaultOptions()},
		{name: "bad language", path: writeInput(t), opts: Options{FallbackEnabled: true, Language: "??"}},
		{name: "manual without tier", path: writeInput(t), opts: Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Run(context.Background(), tt.path, tt.opts)
			var runErr *RunError
			if !errors.As(err, &runErr) || runErr.Stage != StateValidating {
				t.Fatalf("expected validation RunError, got %v", err)
			}
			if res.Success || !strings.HasPrefix(res.Summary, "Request rejected") {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}

func TestRunLanguageHintReachesRecognizer(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: rec})
	opts := defaultOptions()
	opts.Language = "eng"
	if _, err := o.Run(context.Background(), writeInput(t), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.langs[0] != "en" {
		t.Fatalf("language hint = %q", rec.langs[0])
	}
}

func TestRunCorrectionGate(t *testing.T) {
	tests := []struct {
		name        string
		transcript  transcript.Transcript
		enabled     bool
		corrector   *fakeCorrector
		wantCalls   int
		wantApplied bool
		wantWarning bool
	}{
		{name: "acceptable transcript skips correction", transcript: goodTranscript(), enabled: true, corrector: &fakeCorrector{}},
		{name: "disabled skips correction", transcript: poorTranscript(), enabled: false, corrector: &fakeCorrector{}},
		{name: "unacceptable transcript is corrected", transcript: poorTranscript(), enabled: true, corrector: &fakeCorrector{}, wantCalls: 1, wantApplied: true},
		{name: "correction failure is a warning", transcript: poorTranscript(), enabled: true, corrector: &fakeCorrector{err: errors.New("rate limited")}, wantCalls: 1, wantWarning: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{results: map[string]recognition{"medium": {out: tt.transcript}}}
			o := newTestOrchestrator(t, Dependencies{
				Analyzer:   fakeAnalyzer{report: goodAudio},
				Recognizer: rec,
				Corrector:  tt.corrector,
			})
			opts := Options{ManualTier: "medium", CorrectionEnabled: tt.enabled}
			res, err := o.Run(context.Background(), writeInput(t), opts)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if tt.corrector.calls != tt.wantCalls {
				t.Fatalf("corrector calls = %d, want %d", tt.corrector.calls, tt.wantCalls)
			}
			if res.Corrected() != tt.wantApplied {
				t.Fatalf("corrected = %v, want %v", res.Corrected(), tt.wantApplied)
			}
			if tt.wantApplied && res.Text() != "UH" {
				t.Fatalf("final text = %q", res.Text())
			}
			hasWarning := len(res.Warnings) == 1 && res.Warnings[0].Kind == "correction"
			if hasWarning != tt.wantWarning {
				t.Fatalf("warnings = %+v", res.Warnings)
			}
			if !res.Success {
				t.Fatal("run should succeed")
			}
		})
	}
}

func TestRunServesRepeatFromCache(t *testing.T) {
	cache, err := resultcache.New(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("resultcache.New: %v", err)
	}
	rec := &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}}
	hist := &fakeHistory{}
	obs := &fakeObserver{}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: goodAudio},
		Recognizer: rec,
		Cache:      cache,
		History:    hist,
		Observer:   obs,
	})
	input := writeInput(t)

	first, err := o.Run(context.Background(), input, defaultOptions())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	entry, ok, err := cache.Get(context.Background(), first.Fingerprint)
	if err != nil || !ok {
		t.Fatalf("expected cache entry, ok=%v err=%v", ok, err)
	}
	if entry.Metadata.ModelTier != "base" || !strings.Contains(entry.Subtitles, "the quick brown fox jumps") {
		t.Fatalf("unexpected entry %+v", entry.Metadata)
	}

	second, err := o.Run(context.Background(), input, defaultOptions())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("recognizer should run once, got %v", rec.calls)
	}
	if !second.CacheHit || second.RunID == first.RunID || second.Text() != first.Text() {
		t.Fatalf("unexpected cached result %+v", second)
	}
	if !strings.HasPrefix(second.Summary, "Served from cache") {
		t.Fatalf("summary = %q", second.Summary)
	}
	if !reflect.DeepEqual(obs.outcomes, []string{"succeeded", "cache_hit"}) {
		t.Fatalf("outcomes = %v", obs.outcomes)
	}
	if len(hist.records) != 2 || hist.records[1].Status != history.StatusCacheHit {
		t.Fatalf("history = %+v", hist.records)
	}

	opts := defaultOptions()
	opts.Refresh = true
	third, err := o.Run(context.Background(), input, opts)
	if err != nil {
		t.Fatalf("refresh Run: %v", err)
	}
	if third.CacheHit || len(rec.calls) != 2 {
		t.Fatalf("refresh should bypass the cache, calls=%v", rec.calls)
	}
}

func TestRunCacheOmitsTempAudioPaths(t *testing.T) {
	cache, err := resultcache.New(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("resultcache.New: %v", err)
	}
	enhanced := filepath.Join(t.TempDir(), "enhanced.wav")
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: quietPeakAudio},
		Enhancer:   &fakeEnhancer{out: enhanced},
		Recognizer: &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}},
		Cache:      cache,
	})
	input := writeInput(t)

	first, err := o.Run(context.Background(), input, defaultOptions())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.WorkingAudio != enhanced || first.Enhancement.OutputPath != enhanced {
		t.Fatalf("live result should keep the working audio, got %q", first.WorkingAudio)
	}
	entry, ok, err := cache.Get(context.Background(), first.Fingerprint)
	if err != nil || !ok {
		t.Fatalf("expected cache entry, ok=%v err=%v", ok, err)
	}
	if strings.Contains(string(entry.Payload), "enhanced.wav") {
		t.Fatalf("cached payload references temp audio: %s", entry.Payload)
	}

	second, err := o.Run(context.Background(), input, defaultOptions())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.CacheHit || second.WorkingAudio != input {
		t.Fatalf("cache hit should point at the source, got %q", second.WorkingAudio)
	}
	if second.Enhancement == nil || second.Enhancement.OutputPath != "" {
		t.Fatalf("unexpected cached enhancement %+v", second.Enhancement)
	}
}

func TestRunCacheFailuresAreWarnings(t *testing.T) {
	rec := &fakeRecognizer{results: map[string]recognition{"base": {out: goodTranscript()}}}
	o := newTestOrchestrator(t, Dependencies{
		Analyzer:   fakeAnalyzer{report: goodAudio},
		Recognizer: rec,
		Cache:      brokenCache{getErr: errors.New("permission denied"), putErr: errors.New("disk full")},
	})

	res, err := o.Run(context.Background(), writeInput(t), defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var kinds []string
	for _, w := range res.Warnings {
		kinds = append(kinds, w.Kind)
	}
	if !reflect.DeepEqual(kinds, []string{"cache_read", "cache_write"}) {
		t.Fatalf("warning kinds = %v", kinds)
	}
	if !res.Success || !strings.Contains(res.Summary, "disk full") {
		t.Fatalf("unexpected result success=%v summary=%q", res.Success, res.Summary)
	}
}

type cancellingRecognizer struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingRecognizer) Transcribe(ctx context.Context, _, _, _ string) (transcript.Transcript, error) {
	c.calls++
	c.cancel()
	return transcript.Transcript{}, ctx.Err()
}

func TestRunCancelledStopsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &cancellingRecognizer{cancel: cancel}
	o := newTestOrchestrator(t, Dependencies{Analyzer: fakeAnalyzer{report: goodAudio}, Recognizer: rec})

	_, err := o.Run(ctx, writeInput(t), defaultOptions())
	if !errors.Is(err, ErrRecognition) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled recognition failure, got %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("fallback should stop after cancellation, got %d calls", rec.calls)
	}
}
