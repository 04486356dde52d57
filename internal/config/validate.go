package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateRecognition(); err != nil {
		return err
	}
	if err := c.validateCorrection(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SilenceThresholdDB >= 0 {
		return errors.New("audio.silence_threshold_db must be negative")
	}
	return nil
}

func (c *Config) validateRecognition() error {
	seen := make(map[string]struct{}, len(c.Recognition.Tiers))
	for i, tier := range c.Recognition.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("recognition.tiers[%d].name must be set", i)
		}
		if tier.MinAudioQuality < 0 || tier.MinAudioQuality > 100 {
			return fmt.Errorf("recognition.tiers[%d].min_audio_quality must be between 0 and 100", i)
		}
		key := strings.ToLower(tier.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("recognition.tiers: duplicate tier %q", tier.Name)
		}
		seen[key] = struct{}{}
	}
	if !c.Recognition.FallbackEnabled && c.Recognition.ManualTier == "" {
		return errors.New("recognition.manual_tier must be set when recognition.fallback_enabled is false")
	}
	return nil
}

func (c *Config) validateCorrection() error {
	if !c.Correction.Enabled {
		return nil
	}
	if c.Correction.APIKey == "" {
		return errors.New("correction.api_key must be set when correction.enabled is true (or set SCRIBE_LLM_API_KEY)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL such as https://ntfy.sh/my-topic, got %q", topic)
	}
	return nil
}
