package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"scribe/internal/logging"
)

const (
	fpA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	fpB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	fpC = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

type samplePayload struct {
	Text     string   `json:"text"`
	Attempts []string `json:"attempts"`
	Score    int      `json:"score"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(filepath.Join(t.TempDir(), "results"), logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cache.statfs = func(string) (uint64, uint64, error) { return 1000, 250, nil }
	return cache
}

func TestPutGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	payload := samplePayload{Text: "hello world", Attempts: []string{"tiny", "base"}, Score: 82}
	meta := Metadata{ModelTier: "base", Language: "en", SegmentCount: 3, ProcessingDurationSeconds: 4.5}

	loc, err := cache.Put(ctx, fpA, payload, "1\n00:00:00,000 --> 00:00:01,000\nhello\n", meta)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc.Payload != filepath.Join(cache.Root(), fpA+".json") {
		t.Fatalf("unexpected payload location %q", loc.Payload)
	}
	if !cache.Has(fpA) {
		t.Fatal("expected Has to report stored entry")
	}

	entry, ok, err := cache.Get(ctx, fpA)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	var got samplePayload
	if err := json.Unmarshal(entry.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !reflect.DeepEqual(got, payload) {
		t.Fatalf("payload mismatch: got %+v want %+v", got, payload)
	}
	if entry.Metadata.Hash != fpA {
		t.Fatalf("expected metadata hash %s, got %s", fpA, entry.Metadata.Hash)
	}
	if entry.Metadata.CreatedAt.IsZero() || !entry.Metadata.HasSubtitles {
		t.Fatalf("unexpected metadata %+v", entry.Metadata)
	}
	if entry.Metadata.ProcessingDuration() != 4500*time.Millisecond {
		t.Fatalf("unexpected processing duration %v", entry.Metadata.ProcessingDuration())
	}
	if !strings.Contains(entry.Subtitles, "hello") {
		t.Fatalf("expected subtitles, got %q", entry.Subtitles)
	}
}

func TestMetadataUsesCamelCaseKeys(t *testing.T) {
	cache := newTestCache(t)
	if _, err := cache.Put(context.Background(), fpA, samplePayload{Text: "x"}, "", Metadata{ModelTier: "tiny"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := os.ReadFile(cache.Paths(fpA).Metadata)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	for _, key := range []string{"hash", "createdAt", "modelTier", "segmentCount", "source"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("expected key %q in metadata %s", key, data)
		}
	}
}

func TestPutTwiceKeepsLatestPayload(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	if _, err := cache.Put(ctx, fpA, samplePayload{Text: "first"}, "1\n00:00:00,000 --> 00:00:01,000\nfirst\n", Metadata{}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := cache.Put(ctx, fpA, samplePayload{Text: "second"}, "", Metadata{}); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	entry, ok, err := cache.Get(ctx, fpA)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	var got samplePayload
	if err := json.Unmarshal(entry.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Text != "second" {
		t.Fatalf("expected latest payload, got %q", got.Text)
	}
	if entry.Subtitles != "" || entry.Metadata.HasSubtitles {
		t.Fatal("expected stale subtitles removed")
	}
}

func TestGetMissingAndOptionalArtifacts(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, fpA); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
	if _, _, err := cache.Get(ctx, "not-a-digest"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}

	if _, err := cache.Put(ctx, fpA, samplePayload{Text: "x"}, "1\n00:00:00,000 --> 00:00:01,000\nx\n", Metadata{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.Remove(cache.Paths(fpA).Subtitles); err != nil {
		t.Fatalf("remove subtitles: %v", err)
	}
	entry, ok, err := cache.Get(ctx, fpA)
	if err != nil || !ok {
		t.Fatalf("expected entry without subtitles, ok=%v err=%v", ok, err)
	}
	if entry.Subtitles != "" {
		t.Fatalf("expected empty subtitles, got %q", entry.Subtitles)
	}
}

func TestGetCorruptEntries(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	if _, err := cache.Put(ctx, fpA, samplePayload{Text: "x"}, "", Metadata{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.Remove(cache.Paths(fpA).Payload); err != nil {
		t.Fatalf("remove payload: %v", err)
	}
	if cache.Has(fpA) {
		t.Fatal("Has must be false without payload")
	}
	if _, _, err := cache.Get(ctx, fpA); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	if err := os.WriteFile(cache.Paths(fpB).Metadata, []byte("{"), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	if _, _, err := cache.Get(ctx, fpB); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for bad metadata, got %v", err)
	}
}

func TestPayloadWithoutMetadataIsInvisible(t *testing.T) {
	cache := newTestCache(t)
	if err := os.MkdirAll(cache.Root(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cache.Paths(fpA).Payload, []byte(`{"text":"orphan"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if cache.Has(fpA) {
		t.Fatal("payload without metadata must not be visible")
	}
	if _, ok, err := cache.Get(context.Background(), fpA); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	stats, err := cache.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 || stats.Orphans != 1 || stats.Files != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDelete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	if _, err := cache.Put(ctx, fpA, samplePayload{Text: "x"}, "1\n00:00:00,000 --> 00:00:01,000\nx\n", Metadata{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := cache.Delete(ctx, fpA)
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}
	for _, path := range []string{cache.Paths(fpA).Payload, cache.Paths(fpA).Subtitles, cache.Paths(fpA).Metadata} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", path)
		}
	}
	removed, err = cache.Delete(ctx, fpA)
	if err != nil || removed {
		t.Fatalf("second Delete: removed=%v err=%v", removed, err)
	}
}

func TestListNewestFirstAndPurge(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	for fp, age := range map[string]time.Duration{
		fpA: 40 * 24 * time.Hour,
		fpB: 2 * time.Hour,
		fpC: 10 * 24 * time.Hour,
	} {
		meta := Metadata{CreatedAt: now.Add(-age), ModelTier: "tiny"}
		if _, err := cache.Put(ctx, fp, samplePayload{Text: fp[:1]}, "", meta); err != nil {
			t.Fatalf("Put %s: %v", fp[:1], err)
		}
	}

	entries, err := cache.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var order []string
	for _, meta := range entries {
		order = append(order, meta.Hash[:1])
	}
	if strings.Join(order, "") != "bca" {
		t.Fatalf("expected newest first order bca, got %v", order)
	}

	removed, err := cache.PurgeOlderThan(ctx, DefaultPurgeDays)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if removed != 1 || cache.Has(fpA) || !cache.Has(fpB) || !cache.Has(fpC) {
		t.Fatalf("expected only the 40 day old entry purged, removed=%d", removed)
	}

	removed, err = cache.PurgeOlderThan(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeOlderThan(0): %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected remaining entries purged, got %d", removed)
	}
	if _, err := cache.PurgeOlderThan(ctx, -1); err == nil {
		t.Fatal("expected error for negative age")
	}
}

func TestStats(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	if _, err := cache.Put(ctx, fpA, samplePayload{Text: "x"}, "1\n00:00:00,000 --> 00:00:01,000\nx\n", Metadata{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := cache.Put(ctx, fpB, samplePayload{Text: "y"}, "", Metadata{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 2 || stats.Files != 5 || stats.Orphans != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.TotalBytes <= 0 {
		t.Fatalf("expected positive total size, got %d", stats.TotalBytes)
	}
	if stats.FreeRatio != 0.25 || stats.FreeBytes != 250 {
		t.Fatalf("unexpected free space %+v", stats)
	}
}

func TestStatsOnMissingRoot(t *testing.T) {
	cache := newTestCache(t)
	stats, err := cache.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 || stats.Files != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestLockSerialisesSameFingerprint(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	held, err := cache.Lock(ctx, fpA, time.Second)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := cache.Lock(ctx, fpA, 300*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	other, err := cache.Lock(ctx, fpB, time.Second)
	if err != nil {
		t.Fatalf("Lock on different fingerprint: %v", err)
	}
	if err := other.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := held.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := cache.Lock(ctx, fpA, time.Second)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	_ = again.Release()
	if _, err := cache.Lock(ctx, "bad", time.Second); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDeleteKeepsHeldLock(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	held, err := cache.Lock(ctx, fpA, time.Second)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer held.Release()

	if _, err := cache.Delete(ctx, fpA); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := cache.PurgeOlderThan(ctx, 0); err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if _, err := os.Stat(cache.lockPath(fpA)); err != nil {
		t.Fatalf("expected lock file kept: %v", err)
	}
	if _, err := cache.Lock(ctx, fpA, 300*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout after delete, got %v", err)
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var cache *Cache
	ctx := context.Background()
	if cache.Has(fpA) {
		t.Fatal("nil cache must report no entries")
	}
	if _, ok, err := cache.Get(ctx, fpA); ok || err != nil {
		t.Fatalf("nil Get: ok=%v err=%v", ok, err)
	}
	if _, err := cache.Put(ctx, fpA, samplePayload{}, "", Metadata{}); err == nil {
		t.Fatal("expected Put on nil cache to fail")
	}
	lock, err := cache.Lock(ctx, fpA, time.Second)
	if err != nil {
		t.Fatalf("nil Lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}
