package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

// Cache contains configuration for the content-addressed result cache.
type Cache struct {
	Enabled            bool   `toml:"enabled"`
	Dir                string `toml:"dir"`
	PurgeDays          int    `toml:"purge_days"`
	LockTimeoutSeconds int    `toml:"lock_timeout_seconds"`
}

// Audio contains configuration for audio analysis and enhancement.
type Audio struct {
	FFmpegBinary       string  `toml:"ffmpeg_binary"`
	FFprobeBinary      string  `toml:"ffprobe_binary"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db"`
	MinSilenceSeconds  float64 `toml:"min_silence_seconds"`
	EnhancementEnabled bool    `toml:"enhancement_enabled"`
}

// Tier overrides one entry of the recognition tier catalogue.
type Tier struct {
	Name            string `toml:"name"`
	Model           string `toml:"model"`
	MinAudioQuality int    `toml:"min_audio_quality"`
	Description     string `toml:"description"`
}

// Recognition contains configuration for the speech recognition runner.
type Recognition struct {
	Command         string `toml:"command"`
	Script          string `toml:"script"`
	Device          string `toml:"device"`
	ComputeType     string `toml:"compute_type"`
	BeamSize        int    `toml:"beam_size"`
	VADFilter       bool   `toml:"vad_filter"`
	Language        string `toml:"language"`
	FallbackEnabled bool   `toml:"fallback_enabled"`
	ManualTier      string `toml:"manual_tier"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	Tiers           []Tier `toml:"tiers"`
}

// Correction contains configuration for the LLM-backed correction pass.
type Correction struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Inbox contains configuration for the watch folder.
type Inbox struct {
	Dir        string   `toml:"dir"`
	Extensions []string `toml:"extensions"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for scribe.
//
// Configuration sections by subsystem:
//   - Paths: working, output, and log directories plus the history database
//   - Cache: content-addressed result cache location and retention
//   - Audio: ffmpeg binaries and silence detection parameters
//   - Recognition: whisper runner, tier catalogue, fallback behaviour
//   - Correction: LLM correction pass
//   - Logging: log format and level
//   - Metrics: Prometheus bind address
//   - Inbox: watch folder for unattended transcription
//   - Notifications: ntfy topic for inbox outcomes
type Config struct {
	Paths         Paths         `toml:"paths"`
	Cache         Cache         `toml:"cache"`
	Audio         Audio         `toml:"audio"`
	Recognition   Recognition   `toml:"recognition"`
	Correction    Correction    `toml:"correction"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Inbox         Inbox         `toml:"inbox"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) != "" {
		if err := os.MkdirAll(c.Cache.Dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Cache.Dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.HistoryDB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "scribe", "results")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/scribe/results"
	}
	return filepath.Join(home, ".cache", "scribe", "results")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the connection settings for the correction service.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// CorrectionLLM returns the LLM settings for the correction pass.
func (c *Config) CorrectionLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.Correction.APIKey),
		BaseURL:        strings.TrimSpace(c.Correction.BaseURL),
		Model:          strings.TrimSpace(c.Correction.Model),
		Referer:        strings.TrimSpace(c.Correction.Referer),
		Title:          strings.TrimSpace(c.Correction.Title),
		TimeoutSeconds: c.Correction.TimeoutSeconds,
	}
}
