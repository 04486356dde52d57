// Package artifacts writes the user-facing outputs of a run: plain text,
// SubRip subtitles and the full JSON result.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/fileutil"
	"scribe/internal/orchestrator"
	"scribe/internal/subtitles"
	"scribe/internal/textutil"
)

// Files lists the paths written for one result.
type Files struct {
	Text      string `json:"text"`
	Subtitles string `json:"subtitles,omitempty"`
	JSON      string `json:"json"`
}

// Write stores res under dir, named after its source file. The subtitle
// file is skipped when the transcript has no timed text.
func Write(dir string, res *orchestrator.Result) (Files, error) {
	if res == nil || res.Transcript == nil {
		return Files{}, fmt.Errorf("artifacts: result has no transcript")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("artifacts: ensure output dir: %w", err)
	}
	base := filepath.Join(dir, textutil.StemName(res.SourcePath, "transcript"))
	files := Files{Text: base + ".txt", JSON: base + ".json"}

	final := res.Final()
	text := strings.TrimSpace(final.PlainText())
	if text != "" {
		text += "\n"
	}
	if err := fileutil.WriteAtomic(files.Text, []byte(text), 0o644); err != nil {
		return Files{}, fmt.Errorf("artifacts: write text: %w", err)
	}

	srtPath := base + ".srt"
	if srt := subtitles.Render(final.Segments); srt != "" {
		if err := fileutil.WriteAtomic(srtPath, []byte(srt), 0o644); err != nil {
			return Files{}, fmt.Errorf("artifacts: write subtitles: %w", err)
		}
		files.Subtitles = srtPath
	} else if err := os.Remove(srtPath); err != nil && !os.IsNotExist(err) {
		return Files{}, fmt.Errorf("artifacts: remove stale subtitles: %w", err)
	}

	if err := fileutil.WriteJSONAtomic(files.JSON, res); err != nil {
		return Files{}, fmt.Errorf("artifacts: write json: %w", err)
	}
	return files, nil
}
