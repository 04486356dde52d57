package whisper

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"scribe/internal/fileutil"
	langpkg "scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

//go:embed runner.py
var runnerScript []byte

// CommandRunner executes name with args and returns stdout. Errors should
// carry stderr for diagnostics.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service provides faster-whisper transcription.
type Service struct {
	cfg           Config
	commandRunner CommandRunner
	logger        *slog.Logger

	scriptOnce sync.Once
	scriptPath string
	scriptErr  error
}

// NewService creates a recognition service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.ComputeType == "" {
		cfg.ComputeType = DefaultComputeType
	}
	if cfg.BeamSize <= 0 {
		cfg.BeamSize = DefaultBeamSize
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "scribe-whisper")
	}
	return &Service{
		cfg:           cfg,
		commandRunner: execRunner,
		logger:        logging.NewComponentLogger(logger, "whisper"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		s.commandRunner = runner
	}
}

// Transcribe runs the recognition engine on audioPath with the given model.
// An empty language requests auto-detection.
func (s *Service) Transcribe(ctx context.Context, audioPath, model, language string) (transcript.Transcript, error) {
	var empty transcript.Transcript
	if strings.TrimSpace(audioPath) == "" {
		return empty, services.Wrap(services.ErrValidation, "recognition", "transcribe", "audio path required", nil)
	}
	if strings.TrimSpace(model) == "" {
		return empty, services.Wrap(services.ErrValidation, "recognition", "transcribe", "model required", nil)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return empty, services.Wrap(services.ErrNotFound, "recognition", "transcribe", "audio file unavailable", err)
	}
	script, err := s.script()
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "recognition", "prepare runner", "", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name, args := s.buildArgs(script, audioPath, model, language)
	s.logger.Debug("running recognition",
		logging.String("model", model),
		logging.String("language", langpkg.DisplayName(language)),
		logging.String("audio", audioPath),
	)
	stdout, err := s.commandRunner(ctx, name, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return empty, services.Wrap(services.ErrTimeout, "recognition", model, "runner timed out", err)
		}
		return empty, services.Wrap(services.ErrExternalTool, "recognition", model, "runner failed", err)
	}
	payload, err := lastJSONLine(stdout)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "recognition", model, "parse runner output", err)
	}
	result, err := ParseOutput(payload)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "recognition", model, "parse runner output", err)
	}
	if err := s.saveOutput(audioPath, model, payload); err != nil {
		logging.WarnWithContext(s.logger, "failed to keep recognition json", "recognition_output_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recognition output is not kept for inspection"),
		)
	}
	return result, nil
}

// Download loads model once so faster-whisper caches its weights.
func (s *Service) Download(ctx context.Context, model string) error {
	if strings.TrimSpace(model) == "" {
		return errors.New("download: model required")
	}
	script, err := s.script()
	if err != nil {
		return fmt.Errorf("download %s: prepare runner: %w", model, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	name, args := s.buildDownloadArgs(script, model)
	stdout, err := s.commandRunner(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("download %s: %w", model, err)
	}
	payload, err := lastJSONLine(stdout)
	if err != nil {
		return fmt.Errorf("download %s: %w", model, err)
	}
	var status struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(payload, &status); err != nil {
		return fmt.Errorf("download %s: parse status: %w", model, err)
	}
	if !status.OK {
		return fmt.Errorf("download %s: runner reported failure", model)
	}
	return nil
}

// Command returns the configured runner command.
func (s *Service) Command() string {
	return s.cfg.Command
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// usesUV reports whether Command is the uv launcher.
func (s *Service) usesUV() bool {
	return filepath.Base(s.cfg.Command) == "uv"
}

func (s *Service) prefix(script string) (string, []string) {
	if s.usesUV() {
		return s.cfg.Command, []string{"run", "--no-project", "--with", PackageName, PythonCommand, script}
	}
	return s.cfg.Command, []string{script}
}

// buildArgs constructs the runner invocation for one transcription.
func (s *Service) buildArgs(script, audioPath, model, language string) (string, []string) {
	name, args := s.prefix(script)
	args = append(args,
		audioPath,
		"--model", model,
		"--device", s.cfg.Device,
		"--compute-type", s.cfg.ComputeType,
		"--beam-size", strconv.Itoa(s.cfg.BeamSize),
	)
	if s.cfg.VADFilter {
		args = append(args, "--vad-filter")
	}
	if lang := langpkg.ToISO2(language); lang != "" {
		args = append(args, "--language", lang)
	}
	return name, args
}

func (s *Service) buildDownloadArgs(script, model string) (string, []string) {
	name, args := s.prefix(script)
	args = append(args,
		"--download", model,
		"--device", s.cfg.Device,
		"--compute-type", s.cfg.ComputeType,
	)
	return name, args
}

// script returns the runner path, materializing the bundled copy once.
func (s *Service) script() (string, error) {
	if s.cfg.Script != "" {
		if _, err := os.Stat(s.cfg.Script); err != nil {
			return "", fmt.Errorf("runner script: %w", err)
		}
		return s.cfg.Script, nil
	}
	s.scriptOnce.Do(func() {
		if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
			s.scriptErr = fmt.Errorf("ensure work dir: %w", err)
			return
		}
		path := filepath.Join(s.cfg.WorkDir, runnerFileName)
		if err := fileutil.WriteAtomic(path, runnerScript, 0o644); err != nil {
			s.scriptErr = err
			return
		}
		s.scriptPath = path
	})
	return s.scriptPath, s.scriptErr
}

func (s *Service) saveOutput(audioPath, model string, payload []byte) error {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	dest := filepath.Join(s.cfg.WorkDir, base+"."+model+".json")
	return fileutil.WriteAtomic(dest, payload, 0o644)
}

// ParseOutput decodes the runner's JSON document.
func ParseOutput(data []byte) (transcript.Transcript, error) {
	var result transcript.Transcript
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("decode transcript: %w", err)
	}
	if result.Segments == nil {
		result.Segments = []transcript.Segment{}
	}
	for i := range result.Segments {
		result.Segments[i].Text = strings.TrimSpace(result.Segments[i].Text)
	}
	transcript.NumberSegments(result.Segments)
	return result, nil
}

// lastJSONLine returns the last stdout line that looks like a JSON object.
func lastJSONLine(stdout []byte) ([]byte, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 && line[0] == '{' {
			return line, nil
		}
	}
	return nil, errors.New("no JSON document on stdout")
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 600 {
			detail = detail[len(detail)-600:]
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, detail)
	}
	return stdout.Bytes(), nil
}
