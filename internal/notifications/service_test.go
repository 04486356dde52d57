package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"scribe/internal/config"
	"scribe/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTranscribed, notifications.Payload{"source": "a.wav"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "transcribed",
			event:         notifications.EventTranscribed,
			payload:       notifications.Payload{"source": "standup.wav", "tier": "small"},
			expectTitle:   "Scribe - Transcribed",
			expectMessage: "📝 Transcribed: standup.wav (tier small)",
			expectTags:    "scribe,transcribe,completed",
		},
		{
			name:          "cache hit with warnings",
			event:         notifications.EventTranscribed,
			payload:       notifications.Payload{"source": "standup.wav", "tier": "small", "cacheHit": true, "warnings": 2},
			expectTitle:   "Scribe - Transcribed",
			expectMessage: "📝 Transcribed: standup.wav (served from cache)\n2 warning(s), check the summary",
			expectTags:    "scribe,transcribe,completed",
		},
		{
			name:           "failed",
			event:          notifications.EventTranscriptionFailed,
			payload:        notifications.Payload{"source": "noise.wav", "summary": "Audio analysis failed, recognition not attempted."},
			expectTitle:    "Scribe - Failed",
			expectMessage:  "❌ Transcription failed: noise.wav\nAudio analysis failed, recognition not attempted.",
			expectTags:     "scribe,transcribe,failed",
			expectPriority: "high",
		},
		{
			name:          "watch stopped clean",
			event:         notifications.EventWatchStopped,
			payload:       notifications.Payload{"processed": int64(3), "failed": int64(0), "duration": "2m0s"},
			expectTitle:   "Scribe - Inbox Stopped",
			expectMessage: "Inbox watcher stopped: 3 transcribed in 2m0s",
			expectTags:    "scribe,inbox,stopped",
		},
		{
			name:          "watch stopped with errors",
			event:         notifications.EventWatchStopped,
			payload:       notifications.Payload{"processed": int64(3), "failed": int64(1), "duration": "2m0s"},
			expectTitle:   "Scribe - Inbox Stopped (with errors)",
			expectMessage: "Inbox watcher stopped: 3 transcribed, 1 failed in 2m0s",
			expectTags:    "scribe,inbox,stopped",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Scribe - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "scribe,test",
			expectPriority: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTitle, gotTags, gotPriority, gotBody string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTitle = r.Header.Get("Title")
				gotTags = r.Header.Get("Tags")
				gotPriority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tt.event, tt.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if gotTitle != tt.expectTitle {
				t.Errorf("title = %q, want %q", gotTitle, tt.expectTitle)
			}
			if gotBody != tt.expectMessage {
				t.Errorf("body = %q, want %q", gotBody, tt.expectMessage)
			}
			if gotTags != tt.expectTags {
				t.Errorf("tags = %q, want %q", gotTags, tt.expectTags)
			}
			if gotPriority != tt.expectPriority {
				t.Errorf("priority = %q, want %q", gotPriority, tt.expectPriority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is reserved", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
	if err := svc.Publish(context.Background(), notifications.Event("unknown"), nil); err == nil {
		t.Fatal("expected error for unknown event")
	}
}
