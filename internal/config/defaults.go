package config

const (
	defaultConfigPath              = "~/.config/scribe/config.toml"
	defaultWorkDir                 = "~/.local/share/scribe/work"
	defaultOutputDir               = "~/.local/share/scribe/transcripts"
	defaultLogDir                  = "~/.local/share/scribe/logs"
	defaultHistoryDB               = "~/.local/share/scribe/history.db"
	defaultCachePurgeDays          = 30
	defaultCacheLockTimeoutSeconds = 900
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultSilenceThresholdDB      = -50.0
	defaultMinSilenceSeconds       = 0.5
	defaultRecognitionCommand      = "uv"
	defaultRecognitionDevice       = "cpu"
	defaultRecognitionComputeType  = "int8"
	defaultRecognitionBeamSize     = 5
	defaultRecognitionTimeout      = 3600
	defaultCorrectionBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultCorrectionModel         = "google/gemini-3-flash-preview"
	defaultCorrectionReferer       = "https://github.com/scribe"
	defaultCorrectionTitle         = "Scribe Transcript Correction"
	defaultCorrectionTimeout       = 60
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultNtfyRequestTimeout      = 10
)

var defaultInboxExtensions = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".mp4", ".mkv", ".mov", ".webm"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			HistoryDB: defaultHistoryDB,
		},
		Cache: Cache{
			Enabled:            true,
			Dir:                defaultCacheDir(),
			PurgeDays:          defaultCachePurgeDays,
			LockTimeoutSeconds: defaultCacheLockTimeoutSeconds,
		},
		Audio: Audio{
			FFmpegBinary:       defaultFFmpegBinary,
			FFprobeBinary:      defaultFFprobeBinary,
			SilenceThresholdDB: defaultSilenceThresholdDB,
			MinSilenceSeconds:  defaultMinSilenceSeconds,
			EnhancementEnabled: true,
		},
		Recognition: Recognition{
			Command:         defaultRecognitionCommand,
			Device:          defaultRecognitionDevice,
			ComputeType:     defaultRecognitionComputeType,
			BeamSize:        defaultRecognitionBeamSize,
			VADFilter:       true,
			FallbackEnabled: true,
			TimeoutSeconds:  defaultRecognitionTimeout,
		},
		Correction: Correction{
			BaseURL:        defaultCorrectionBaseURL,
			Model:          defaultCorrectionModel,
			Referer:        defaultCorrectionReferer,
			Title:          defaultCorrectionTitle,
			TimeoutSeconds: defaultCorrectionTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Inbox: Inbox{
			Extensions: append([]string(nil), defaultInboxExtensions...),
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyRequestTimeout,
		},
	}
}
