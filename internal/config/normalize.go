package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeAudio()
	c.normalizeRecognition()
	c.normalizeCorrection()
	if err := c.normalizeInbox(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() error {
	var err error
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = defaultCacheDir()
	}
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	if c.Cache.PurgeDays <= 0 {
		c.Cache.PurgeDays = defaultCachePurgeDays
	}
	if c.Cache.LockTimeoutSeconds <= 0 {
		c.Cache.LockTimeoutSeconds = defaultCacheLockTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeAudio() {
	c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary)
	if c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = defaultFFmpegBinary
	}
	c.Audio.FFprobeBinary = strings.TrimSpace(c.Audio.FFprobeBinary)
	if c.Audio.FFprobeBinary == "" {
		c.Audio.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Audio.SilenceThresholdDB == 0 {
		c.Audio.SilenceThresholdDB = defaultSilenceThresholdDB
	}
	if c.Audio.MinSilenceSeconds <= 0 {
		c.Audio.MinSilenceSeconds = defaultMinSilenceSeconds
	}
}

func (c *Config) normalizeRecognition() {
	c.Recognition.Command = strings.TrimSpace(c.Recognition.Command)
	if c.Recognition.Command == "" {
		c.Recognition.Command = defaultRecognitionCommand
	}
	c.Recognition.Script = strings.TrimSpace(c.Recognition.Script)
	if c.Recognition.Script != "" {
		if expanded, err := expandPath(c.Recognition.Script); err == nil {
			c.Recognition.Script = expanded
		}
	}
	c.Recognition.Device = strings.ToLower(strings.TrimSpace(c.Recognition.Device))
	if c.Recognition.Device == "" {
		c.Recognition.Device = defaultRecognitionDevice
	}
	c.Recognition.ComputeType = strings.ToLower(strings.TrimSpace(c.Recognition.ComputeType))
	if c.Recognition.ComputeType == "" {
		c.Recognition.ComputeType = defaultRecognitionComputeType
	}
	if c.Recognition.BeamSize <= 0 {
		c.Recognition.BeamSize = defaultRecognitionBeamSize
	}
	if c.Recognition.TimeoutSeconds <= 0 {
		c.Recognition.TimeoutSeconds = defaultRecognitionTimeout
	}
	c.Recognition.Language = strings.ToLower(strings.TrimSpace(c.Recognition.Language))
	c.Recognition.ManualTier = strings.TrimSpace(c.Recognition.ManualTier)
	for i := range c.Recognition.Tiers {
		c.Recognition.Tiers[i].Name = strings.TrimSpace(c.Recognition.Tiers[i].Name)
		c.Recognition.Tiers[i].Model = strings.TrimSpace(c.Recognition.Tiers[i].Model)
		if c.Recognition.Tiers[i].Model == "" {
			c.Recognition.Tiers[i].Model = c.Recognition.Tiers[i].Name
		}
		c.Recognition.Tiers[i].Description = strings.TrimSpace(c.Recognition.Tiers[i].Description)
	}
}

func (c *Config) normalizeCorrection() {
	c.Correction.APIKey = strings.TrimSpace(c.Correction.APIKey)
	if c.Correction.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIBE_LLM_API_KEY"); ok {
			c.Correction.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Correction.APIKey = strings.TrimSpace(value)
		}
	}
	c.Correction.BaseURL = strings.TrimSpace(c.Correction.BaseURL)
	if c.Correction.BaseURL == "" {
		c.Correction.BaseURL = defaultCorrectionBaseURL
	}
	c.Correction.Model = strings.TrimSpace(c.Correction.Model)
	if c.Correction.Model == "" {
		c.Correction.Model = defaultCorrectionModel
	}
	if c.Correction.TimeoutSeconds <= 0 {
		c.Correction.TimeoutSeconds = defaultCorrectionTimeout
	}
}

func (c *Config) normalizeInbox() error {
	var err error
	if strings.TrimSpace(c.Inbox.Dir) != "" {
		if c.Inbox.Dir, err = expandPath(c.Inbox.Dir); err != nil {
			return fmt.Errorf("inbox.dir: %w", err)
		}
	}
	exts := make([]string, 0, len(c.Inbox.Extensions))
	seen := make(map[string]struct{}, len(c.Inbox.Extensions))
	for _, ext := range c.Inbox.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultInboxExtensions...)
	}
	c.Inbox.Extensions = exts
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyRequestTimeout
	}
}
