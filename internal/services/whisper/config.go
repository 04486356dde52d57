package whisper

import "time"

// Config captures runtime settings for the faster-whisper runner.
type Config struct {
	// Command is "uv" (run the script through uv with faster-whisper) or a
	// python interpreter that already has faster-whisper installed.
	Command string
	// Script replaces the bundled runner when set.
	Script string
	// WorkDir receives the materialized runner and the per-run JSON output.
	WorkDir     string
	Device      string
	ComputeType string
	BeamSize    int
	VADFilter   bool
	Timeout     time.Duration
}

// Runner defaults.
const (
	DefaultCommand     = "uv"
	DefaultDevice      = "cpu"
	DefaultComputeType = "int8"
	DefaultBeamSize    = 5
	PackageName        = "faster-whisper"
	PythonCommand      = "python"
	runnerFileName     = "scribe_whisper_runner.py"
)

// Models lists the faster-whisper models the download command pre-fetches.
var Models = []string{"tiny", "base", "small", "medium", "large-v3"}
