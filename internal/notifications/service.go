package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "scribe/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventTranscribed         Event = "transcribed"
	EventTranscriptionFailed Event = "transcription_failed"
	EventWatchStopped        Event = "watch_stopped"
	EventTest                Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	source := payload.text("source", "unknown file")
	switch event {
	case EventTranscribed:
		detail := "tier " + payload.text("tier", "unknown")
		if payload.flag("cacheHit") {
			detail = "served from cache"
		}
		body := fmt.Sprintf("📝 Transcribed: %s (%s)", source, detail)
		if warnings := payload.count("warnings"); warnings > 0 {
			body += fmt.Sprintf("\n%d warning(s), check the summary", warnings)
		}
		return message{
			title: "Scribe - Transcribed",
			body:  body,
			tags:  []string{"scribe", "transcribe", "completed"},
		}, true
	case EventTranscriptionFailed:
		body := fmt.Sprintf("❌ Transcription failed: %s", source)
		if summary := payload.text("summary", ""); summary != "" {
			body += "\n" + summary
		}
		return message{
			title:    "Scribe - Failed",
			body:     body,
			tags:     []string{"scribe", "transcribe", "failed"},
			priority: "high",
		}, true
	case EventWatchStopped:
		processed, failed := payload.count("processed"), payload.count("failed")
		duration := payload.text("duration", "0s")
		title := "Scribe - Inbox Stopped"
		body := fmt.Sprintf("Inbox watcher stopped: %d transcribed in %s", processed, duration)
		if failed > 0 {
			title = "Scribe - Inbox Stopped (with errors)"
			body = fmt.Sprintf("Inbox watcher stopped: %d transcribed, %d failed in %s", processed, failed, duration)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"scribe", "inbox", "stopped"},
		}, true
	case EventTest:
		return message{
			title:    "Scribe - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"scribe", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key, fallback string) string {
	if value, ok := p[key]; ok && value != nil {
		if s := strings.TrimSpace(fmt.Sprint(value)); s != "" {
			return s
		}
	}
	return fallback
}

func (p Payload) flag(key string) bool {
	value, _ := p[key].(bool)
	return value
}

func (p Payload) count(key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
