package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultBinary is the ffmpeg executable resolved from PATH.
const DefaultBinary = "ffmpeg"

// Runner executes name with args and returns the combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandError reports a failed ffmpeg invocation.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	output := strings.TrimSpace(e.Output)
	if len(output) > 400 {
		output = output[len(output)-400:]
	}
	if output == "" {
		return fmt.Sprintf("%s: exit %d: %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s: exit %d: %v: %s", e.Command, e.ExitCode, e.Err, output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Client runs ffmpeg analysis and filter passes.
type Client struct {
	binary string
	run    Runner
}

// New returns a Client for the supplied binary.
func New(binary string) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{binary: binary, run: execRunner}
}

// WithRunner replaces the process runner (for testing).
func (c *Client) WithRunner(runner Runner) *Client {
	if runner != nil {
		c.run = runner
	}
	return c
}

// Binary returns the configured ffmpeg executable.
func (c *Client) Binary() string {
	return c.binary
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	output, err := c.run(ctx, c.binary, args...)
	if err == nil {
		return output, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return output, err
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return output, &CommandError{Command: c.binary, ExitCode: code, Output: string(output), Err: err}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
