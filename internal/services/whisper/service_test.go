package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/logging"
	"scribe/internal/services"
)

const runnerOutput = `{"language": "fr", "language_probability": 0.9731, "duration": 12.5, "text": "Bonjour à tous", "segments": [{"id": 1, "start": 0.0, "end": 2.4, "text": " Bonjour à tous ", "avg_logprob": -0.21}, {"id": 2, "start": 2.4, "end": 4.0, "text": ""}]}`

func newTestService(t *testing.T, command string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	audio := filepath.Join(dir, "meeting.wav")
	if err := os.WriteFile(audio, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	svc := NewService(Config{
		Command:   command,
		WorkDir:   filepath.Join(dir, "work"),
		VADFilter: true,
	}, logging.NewNop())
	return svc, audio
}

func TestTranscribeBuildsUVInvocation(t *testing.T) {
	svc, audio := newTestService(t, "uv")
	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return []byte("loading model\n" + runnerOutput + "\n"), nil
	})

	result, err := svc.Transcribe(context.Background(), audio, "small", "French")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotName != "uv" {
		t.Fatalf("command = %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, fragment := range []string{
		"run --no-project --with faster-whisper python",
		audio + " --model small",
		"--device cpu",
		"--compute-type int8",
		"--beam-size 5",
		"--vad-filter",
		"--language fr",
	} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected %q in %q", fragment, joined)
		}
	}
	if result.Language != "fr" || result.LanguageProbability != 0.9731 || result.Duration != 12.5 {
		t.Fatalf("unexpected transcript header: %+v", result)
	}
	if len(result.Segments) != 2 || result.Segments[0].Text != "Bonjour à tous" {
		t.Fatalf("unexpected segments: %+v", result.Segments)
	}
	if conf, ok := result.Segments[0].Confidence(); !ok || conf <= 0.8 {
		t.Fatalf("expected confidence from avg_logprob, got %v %v", conf, ok)
	}

	saved := filepath.Join(svc.cfg.WorkDir, "meeting.small.json")
	if _, err := os.Stat(saved); err != nil {
		t.Fatalf("expected saved json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(svc.cfg.WorkDir, runnerFileName)); err != nil {
		t.Fatalf("expected materialized runner: %v", err)
	}
}

func TestTranscribeWithInterpreterAutoDetect(t *testing.T) {
	svc, audio := newTestService(t, "/usr/bin/python3")
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(runnerOutput), nil
	})
	if _, err := svc.Transcribe(context.Background(), audio, "tiny", ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !strings.HasSuffix(gotArgs[0], runnerFileName) {
		t.Fatalf("expected script as first arg, got %v", gotArgs)
	}
	for _, arg := range gotArgs {
		if arg == "--language" {
			t.Fatalf("auto-detect must not pass --language: %v", gotArgs)
		}
	}
}

func TestTranscribeRunnerFailure(t *testing.T) {
	svc, audio := newTestService(t, "uv")
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: CUDA unavailable")
	})
	_, err := svc.Transcribe(context.Background(), audio, "base", "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestTranscribeRejectsGarbageOutput(t *testing.T) {
	svc, audio := newTestService(t, "uv")
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Traceback (most recent call last):\n  boom"), nil
	})
	if _, err := svc.Transcribe(context.Background(), audio, "base", ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	svc, _ := newTestService(t, "uv")
	_, err := svc.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), "base", "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	svc, _ := newTestService(t, "uv")
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(`{"model": "medium", "ok": true}`), nil
	})
	if err := svc.Download(context.Background(), "medium"); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "--download medium") {
		t.Fatalf("unexpected args: %v", gotArgs)
	}

	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"model": "medium", "ok": false}`), nil
	})
	if err := svc.Download(context.Background(), "medium"); err == nil {
		t.Fatal("expected failure status to surface")
	}
}

func TestParseOutputDefaultsSegments(t *testing.T) {
	result, err := ParseOutput([]byte(`{"language":"en","language_probability":0.5,"duration":1}`))
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	if result.Segments == nil {
		t.Fatal("expected non-nil segments")
	}
}

func TestParseOutputNumbersSegmentsWithoutIDs(t *testing.T) {
	result, err := ParseOutput([]byte(`{"segments":[{"start":0,"end":1,"text":" a "},{"start":1,"end":2,"text":"b"}]}`))
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	if result.Segments[0].ID != 0 || result.Segments[1].ID != 1 {
		t.Fatalf("unexpected ids %+v", result.Segments)
	}
	if result.Segments[0].Text != "a" {
		t.Fatalf("text not trimmed: %q", result.Segments[0].Text)
	}
}
