package ffprobe

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
			BitRate:  "32000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestInspectWithParsesOutput(t *testing.T) {
	var gotArgs []string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffprobe" {
			t.Fatalf("unexpected binary %q", name)
		}
		gotArgs = args
		return []byte(`{"streams":[{"index":0,"codec_name":"h264","codec_type":"video"},{"index":1,"codec_name":"aac","codec_type":"audio","sample_rate":"48000","channels":2,"tags":{"language":"eng"}}],"format":{"filename":"in.mp4","duration":"12.5","size":"2048","format_name":"mov,mp4"}}`), nil
	}
	result, err := InspectWith(context.Background(), runner, "", "/media/in.mp4")
	if err != nil {
		t.Fatalf("InspectWith returned error: %v", err)
	}
	if gotArgs[len(gotArgs)-1] != "/media/in.mp4" || gotArgs[len(gotArgs)-2] != "--" {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	audio, ok := result.PrimaryAudio()
	if !ok {
		t.Fatal("expected primary audio stream")
	}
	if audio.CodecName != "aac" || audio.SampleRateHz() != 48000 || audio.Tags["language"] != "eng" {
		t.Fatalf("unexpected audio stream %+v", audio)
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds())
	}
	if len(result.RawJSON()) == 0 {
		t.Fatal("expected raw JSON retained")
	}
}

func TestInspectWithErrors(t *testing.T) {
	failing := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("No such file"), errors.New("exit status 1")
	}
	if _, err := InspectWith(context.Background(), failing, "ffprobe", "missing.wav"); err == nil || !strings.Contains(err.Error(), "No such file") {
		t.Fatalf("expected runner failure with output, got %v", err)
	}
	garbage := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json"), nil
	}
	if _, err := InspectWith(context.Background(), garbage, "ffprobe", "in.wav"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := InspectWith(context.Background(), garbage, "ffprobe", "  "); err == nil {
		t.Fatal("expected empty path error")
	}
	if _, ok := (Result{}).PrimaryAudio(); ok {
		t.Fatal("expected no primary audio in empty result")
	}
}
