package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse marks ffmpeg output that did not contain the expected statistics.
var ErrParse = errors.New("unparseable ffmpeg output")

// Volume holds volumedetect statistics in dBFS.
type Volume struct {
	MeanDB   float64
	PeakDB   float64
	Duration float64
}

// Interval is one detected silence region in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Length returns the interval duration.
func (i Interval) Length() float64 {
	if i.End <= i.Start {
		return 0
	}
	return i.End - i.Start
}

// Silence holds silencedetect results.
type Silence struct {
	Intervals []Interval
	Duration  float64
}

// Total returns the summed silence duration.
func (s Silence) Total() float64 {
	var total float64
	for _, interval := range s.Intervals {
		total += interval.Length()
	}
	if s.Duration > 0 && total > s.Duration {
		return s.Duration
	}
	return total
}

// timestampPattern matches silencedetect times, which ffmpeg prints with %g
// and so switches to exponent form near zero.
const timestampPattern = `-?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?`

var (
	meanVolumePattern = regexp.MustCompile(`mean_volume:\s*(-?(?:inf|[0-9.]+))\s*dB`)
	maxVolumePattern  = regexp.MustCompile(`max_volume:\s*(-?(?:inf|[0-9.]+))\s*dB`)
	durationPattern   = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	silenceStartRe    = regexp.MustCompile(`silence_start:\s*(` + timestampPattern + `)`)
	silenceEndRe      = regexp.MustCompile(`silence_end:\s*(` + timestampPattern + `)`)
)

// silenceFloorDB stands in for -inf when ffmpeg reports digital silence.
const silenceFloorDB = -91.0

func analysisArgs(input, filter string) []string {
	return []string{
		"-hide_banner",
		"-nostats",
		"-i", input,
		"-vn",
		"-sn",
		"-dn",
		"-af", filter,
		"-f", "null",
		"-",
	}
}

// VolumeDetect runs the volumedetect filter over input.
func (c *Client) VolumeDetect(ctx context.Context, input string) (Volume, error) {
	output, err := c.exec(ctx, analysisArgs(input, "volumedetect")...)
	if err != nil {
		return Volume{}, fmt.Errorf("volumedetect: %w", err)
	}
	return ParseVolume(string(output))
}

// SilenceDetect runs the silencedetect filter at thresholdDB with the given
// minimum silence length.
func (c *Client) SilenceDetect(ctx context.Context, input string, thresholdDB, minSeconds float64) (Silence, error) {
	filter := Filter{Name: "silencedetect", Params: []Param{
		{Key: "noise", Value: formatFloat(thresholdDB) + "dB"},
		{Key: "d", Value: formatFloat(minSeconds)},
	}}
	output, err := c.exec(ctx, analysisArgs(input, filter.String())...)
	if err != nil {
		return Silence{}, fmt.Errorf("silencedetect: %w", err)
	}
	return ParseSilence(string(output))
}

// ParseVolume extracts volumedetect statistics from ffmpeg stderr.
func ParseVolume(output string) (Volume, error) {
	var vol Volume
	mean, ok := matchDB(meanVolumePattern, output)
	if !ok {
		return vol, fmt.Errorf("%w: mean_volume missing", ErrParse)
	}
	peak, ok := matchDB(maxVolumePattern, output)
	if !ok {
		return vol, fmt.Errorf("%w: max_volume missing", ErrParse)
	}
	duration, err := ParseDuration(output)
	if err != nil {
		return vol, err
	}
	vol.MeanDB = mean
	vol.PeakDB = peak
	vol.Duration = duration
	return vol, nil
}

// ParseSilence extracts silence intervals from ffmpeg stderr. A silence that
// starts but never ends runs to the end of the input.
func ParseSilence(output string) (Silence, error) {
	duration, err := ParseDuration(output)
	if err != nil {
		return Silence{}, err
	}
	result := Silence{Duration: duration, Intervals: []Interval{}}
	open := -1.0
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return Silence{}, fmt.Errorf("%w: silence_start %q", ErrParse, m[1])
			}
			open = max(value, 0)
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return Silence{}, fmt.Errorf("%w: silence_end %q", ErrParse, m[1])
			}
			start := open
			if start < 0 {
				start = 0
			}
			result.Intervals = append(result.Intervals, Interval{Start: start, End: value})
			open = -1
		}
	}
	if err := scanner.Err(); err != nil {
		return Silence{}, fmt.Errorf("scan silencedetect output: %w", err)
	}
	if open >= 0 && duration > open {
		result.Intervals = append(result.Intervals, Interval{Start: open, End: duration})
	}
	return result, nil
}

// ParseDuration reads the input duration from the ffmpeg banner.
func ParseDuration(output string) (float64, error) {
	m := durationPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("%w: duration missing", ErrParse)
	}
	hours, errH := strconv.Atoi(m[1])
	minutes, errM := strconv.Atoi(m[2])
	seconds, errS := strconv.ParseFloat(m[3], 64)
	if errH != nil || errM != nil || errS != nil {
		return 0, fmt.Errorf("%w: duration %q", ErrParse, m[0])
	}
	return float64(hours*3600+minutes*60) + seconds, nil
}

func matchDB(pattern *regexp.Regexp, output string) (float64, bool) {
	m := pattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	if strings.HasSuffix(m[1], "inf") {
		return silenceFloorDB, true
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
