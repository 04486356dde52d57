package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scribe/internal/audioquality"
	"scribe/internal/config"
	"scribe/internal/fingerprint"
	"scribe/internal/orchestrator"
	"scribe/internal/resultcache"
	"scribe/internal/testsupport"
	"scribe/internal/tiers"
	"scribe/internal/transcript"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	recognizer *stubRecognizer
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string) (audioquality.Report, error) {
	return audioquality.Score(audioquality.Features{
		MeanVolumeDB: -20, PeakVolumeDB: -5, Duration: 60,
		SilenceDuration: 6, SpeechDuration: 54, SilencePercentage: 10,
	}), nil
}

type stubRecognizer struct {
	err   error
	calls int
}

func (s *stubRecognizer) Transcribe(context.Context, string, string, string) (transcript.Transcript, error) {
	s.calls++
	if s.err != nil {
		return transcript.Transcript{}, s.err
	}
	return transcript.Transcript{
		Language:            "en",
		LanguageProbability: 0.95,
		Segments: []transcript.Segment{
			{ID: 0, Start: 0, End: 2, Text: "the quick brown fox jumps"},
			{ID: 1, Start: 2, End: 4, Text: "over the lazy sleeping dog"},
		},
	}, nil
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("SCRIBE_LLM_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	cfg.Logging.Level = "error"

	configPath := filepath.Join(homeDir, ".config", "scribe", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, recognizer: &stubRecognizer{}}
	stubRuntime(t, env.recognizer)
	return env
}

// stubRuntime swaps the production wiring for in-process collaborators
// backed by the real cache and history.
func stubRuntime(t *testing.T, rec orchestrator.Recognizer) {
	t.Helper()
	original := newRuntime
	newRuntime = func(cfg *config.Config, logger *slog.Logger, hist orchestrator.HistoryRecorder, observer orchestrator.Observer) (*orchestrator.Runtime, error) {
		deps := orchestrator.Dependencies{
			Fingerprint: fingerprint.File,
			Analyzer:    stubAnalyzer{},
			Recognizer:  rec,
			Catalogue:   tiers.Default(),
			History:     hist,
			Observer:    observer,
		}
		rt := &orchestrator.Runtime{}
		cache, err := resultcache.NewFromConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			rt.Cache = cache
			deps.Cache = cache
		}
		orch, err := orchestrator.New(deps, logger)
		if err != nil {
			return nil, err
		}
		rt.Orchestrator = orch
		return rt, nil
	}
	t.Cleanup(func() { newRuntime = original })
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, "input", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n---\n%s", needle, haystack)
	}
}

var errRecognizerDown = errors.New("runner exited with status 1")
