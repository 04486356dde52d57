package enhance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/audioquality"
	"scribe/internal/ffmpeg"
	"scribe/internal/logging"
	"scribe/internal/quality"
)

type fakeEngine struct {
	applyErr   error
	failOnCall int
	silence    ffmpeg.Silence
	silenceErr error

	calls   [][]ffmpeg.Filter
	outputs []string
}

func (f *fakeEngine) Apply(_ context.Context, _ string, output string, filters []ffmpeg.Filter) error {
	f.calls = append(f.calls, filters)
	if f.failOnCall > 0 && len(f.calls) == f.failOnCall {
		return f.applyErr
	}
	f.outputs = append(f.outputs, output)
	return os.WriteFile(output, []byte("RIFF"), 0o644)
}

func (f *fakeEngine) SilenceDetect(context.Context, string, float64, float64) (ffmpeg.Silence, error) {
	return f.silence, f.silenceErr
}

func reportWith(score int, severities ...quality.Severity) audioquality.Report {
	issues := make([]quality.Issue, 0, len(severities))
	for _, s := range severities {
		issues = append(issues, quality.Issue{Kind: "X", Severity: s})
	}
	return audioquality.Report{Assessment: quality.Assessment{Score: score, Issues: issues}}
}

func TestSelectPreset(t *testing.T) {
	tests := []struct {
		name   string
		report audioquality.Report
		want   PresetName
	}{
		{"clean", reportWith(100), PresetLight},
		{"medium only", reportWith(85, quality.SeverityMedium), PresetLight},
		{"high issue", reportWith(75, quality.SeverityHigh), PresetStandard},
		{"low score without issues", reportWith(55), PresetStandard},
		{"critical issue", reportWith(60, quality.SeverityCritical), PresetAggressive},
		{"very low score", reportWith(25, quality.SeverityHigh), PresetAggressive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectPreset(tt.report); got.Name != tt.want {
				t.Fatalf("SelectPreset = %s, want %s", got.Name, tt.want)
			}
		})
	}
}

func TestSelectPresetFromLowPeakReport(t *testing.T) {
	report := audioquality.Score(audioquality.Features{MeanVolumeDB: -30, PeakVolumeDB: -25, Duration: 60, SpeechDuration: 55, SilencePercentage: 8})
	if got := SelectPreset(report); got.Name != PresetAggressive {
		t.Fatalf("expected AGGRESSIVE for CRITICAL peak issue, got %s", got.Name)
	}
}

func TestPresetFilters(t *testing.T) {
	light, _ := Lookup(PresetLight)
	if got := ffmpeg.Chain(light.Filters()); got != "highpass=f=80,loudnorm=I=-16:TP=-1.5:LRA=11" {
		t.Fatalf("unexpected LIGHT chain %q", got)
	}
	aggressive, _ := Lookup(PresetAggressive)
	chain := ffmpeg.Chain(aggressive.Filters())
	for _, fragment := range []string{"highpass=f=150", "lowpass=f=7000", "afftdn=nr=25", "volume=6dB", "acompressor=", "loudnorm=I=-14"} {
		if !strings.Contains(chain, fragment) {
			t.Fatalf("expected %q in %q", fragment, chain)
		}
	}
	if len(Presets()) != 3 || Presets()[0].Name != PresetLight || Presets()[2].Name != PresetAggressive {
		t.Fatalf("unexpected preset order: %+v", Presets())
	}
}

func TestEnhanceWithoutTrim(t *testing.T) {
	engine := &fakeEngine{silence: ffmpeg.Silence{Duration: 10, Intervals: []ffmpeg.Interval{{Start: 0, End: 2}}}}
	workDir := t.TempDir()
	enhancer := NewEnhancer(engine, workDir, 0, 0, logging.NewNop())

	preset, _ := Lookup(PresetStandard)
	result, err := enhancer.Enhance(context.Background(), "/media/call.mp3", preset)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if result.Trimmed {
		t.Fatal("did not expect a trim pass at 20% silence")
	}
	if len(engine.calls) != 1 {
		t.Fatalf("expected one ffmpeg pass, got %d", len(engine.calls))
	}
	if filepath.Base(result.OutputPath) != "call.standard.wav" {
		t.Fatalf("unexpected output path %s", result.OutputPath)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("expected output to exist: %v", err)
	}

	result.Cleanup()
	if _, err := os.Stat(result.OutputPath); !os.IsNotExist(err) {
		t.Fatalf("expected cleanup to remove output, stat err=%v", err)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Fatalf("expected empty work dir after cleanup, got %d entries", len(entries))
	}
}

func TestEnhanceTrimsMostlySilentAudio(t *testing.T) {
	engine := &fakeEngine{silence: ffmpeg.Silence{Duration: 10, Intervals: []ffmpeg.Interval{{Start: 0, End: 6}}}}
	enhancer := NewEnhancer(engine, t.TempDir(), -50, 0.5, nil)

	preset, _ := Lookup(PresetLight)
	result, err := enhancer.Enhance(context.Background(), "in.wav", preset)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	defer result.Cleanup()
	if !result.Trimmed {
		t.Fatal("expected trim pass at 60% silence")
	}
	if len(engine.calls) != 2 || engine.calls[1][0].Name != "silenceremove" {
		t.Fatalf("expected silenceremove second pass, got %+v", engine.calls)
	}
	if filepath.Base(result.OutputPath) != "in.trimmed.wav" {
		t.Fatalf("trimmed output should supersede filtered output, got %s", result.OutputPath)
	}
	if _, err := os.Stat(engine.outputs[0]); !os.IsNotExist(err) {
		t.Fatal("expected intermediate filtered file to be removed")
	}
}

func TestEnhanceFailureCleansUp(t *testing.T) {
	engine := &fakeEngine{failOnCall: 1, applyErr: errors.New("exit 1")}
	workDir := t.TempDir()
	enhancer := NewEnhancer(engine, workDir, 0, 0, nil)

	preset, _ := Lookup(PresetAggressive)
	if _, err := enhancer.Enhance(context.Background(), "in.wav", preset); !errors.Is(err, ErrEnhancement) {
		t.Fatalf("expected ErrEnhancement, got %v", err)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Fatalf("expected temp dir removal on failure, got %d entries", len(entries))
	}
}

func TestEnhanceSilenceCheckFailureKeepsFilteredAudio(t *testing.T) {
	engine := &fakeEngine{silenceErr: errors.New("probe failed")}
	enhancer := NewEnhancer(engine, t.TempDir(), 0, 0, nil)
	preset, _ := Lookup(PresetLight)
	result, err := enhancer.Enhance(context.Background(), "in.wav", preset)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	defer result.Cleanup()
	if result.Trimmed || result.OutputPath == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
