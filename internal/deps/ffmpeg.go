package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// RequiredFilters are the ffmpeg filters used by analysis and enhancement.
var RequiredFilters = []string{
	"volumedetect",
	"silencedetect",
	"highpass",
	"lowpass",
	"afftdn",
	"volume",
	"acompressor",
	"loudnorm",
	"silenceremove",
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CheckFFmpegFilters reports whether binary provides every required filter.
// A nil run executes the binary directly.
func CheckFFmpegFilters(ctx context.Context, binary string, run Runner) Status {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	status := Status{
		Name:        "FFmpeg filters",
		Command:     binary,
		Description: "Required for audio analysis and enhancement",
	}
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, binary, "-hide_banner", "-filters")
	if err != nil {
		status.Detail = fmt.Sprintf("list filters: %v", err)
		return status
	}
	available := ParseFilterList(out)
	var missing []string
	for _, name := range RequiredFilters {
		if !slices.Contains(available, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		status.Detail = "missing filters: " + strings.Join(missing, ", ")
		return status
	}
	status.Available = true
	return status
}

// ParseFilterList extracts filter names from `ffmpeg -filters` output.
// Filter rows are flags, name, pad layout ("A->A") and description; the
// legend above them has no pad layout.
func ParseFilterList(out []byte) []string {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
