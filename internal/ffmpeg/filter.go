package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Output constraints for every filtered file.
const (
	OutputSampleRate = 16000
	OutputChannels   = 1
	OutputCodec      = "pcm_s16le"
)

// Param is one key=value filter option. Order is preserved when rendering.
type Param struct {
	Key   string
	Value string
}

// Filter is one named ffmpeg audio filter.
type Filter struct {
	Name   string
	Params []Param
}

// String renders the filter in ffmpeg filtergraph syntax.
func (f Filter) String() string {
	if len(f.Params) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		if p.Key == "" {
			parts = append(parts, p.Value)
			continue
		}
		parts = append(parts, p.Key+"="+p.Value)
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain renders filters as a comma separated filtergraph.
func Chain(filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		parts = append(parts, f.String())
	}
	return strings.Join(parts, ",")
}

// ApplyArgs builds the ffmpeg argument list for a filter pass.
func ApplyArgs(input, output string, filters []Filter) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-sn",
		"-dn",
	}
	if chain := Chain(filters); chain != "" {
		args = append(args, "-af", chain)
	}
	args = append(args,
		"-ac", strconv.Itoa(OutputChannels),
		"-ar", strconv.Itoa(OutputSampleRate),
		"-c:a", OutputCodec,
		output,
	)
	return args
}

// Apply runs input through filters and writes a mono 16 kHz WAV to output.
func (c *Client) Apply(ctx context.Context, input, output string, filters []Filter) error {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(output) == "" {
		return errors.New("ffmpeg apply: input and output paths required")
	}
	if input == output {
		return fmt.Errorf("ffmpeg apply: output %q would overwrite input", output)
	}
	if _, err := c.exec(ctx, ApplyArgs(input, output, filters)...); err != nil {
		return fmt.Errorf("ffmpeg apply: %w", err)
	}
	return nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
