package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"scribe/internal/textutil"
)

const stampLayout = "2006-01-02 15:04"

func humanBytes(v int64) string {
	if v < 0 {
		v = 0
	}
	return humanize.IBytes(uint64(v))
}

// humanAge renders t relative to now, or "unknown" for the zero time.
func humanAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func yesNo(value bool) string {
	return textutil.Ternary(value, "yes", "no")
}

func scoreCell(score int, level string) string {
	if level == "" {
		return fmt.Sprintf("%d", score)
	}
	return fmt.Sprintf("%d %s", score, level)
}

func optionalScore(score *int, level string) string {
	if score == nil {
		return "-"
	}
	return scoreCell(*score, level)
}

// shortFingerprint trims a fingerprint for table display.
func shortFingerprint(fp string) string {
	fp = strings.TrimSpace(fp)
	if len(fp) > 12 {
		return fp[:12]
	}
	if fp == "" {
		return "-"
	}
	return fp
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
