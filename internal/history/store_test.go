package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/history"
	"scribe/internal/testsupport"
)

func intp(v int) *int { return &v }

func TestRecordAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first := history.Record{
		RunID:             "run-1",
		Fingerprint:       "abc",
		SourcePath:        "/in/a.wav",
		Status:            history.StatusSucceeded,
		ChosenTier:        "base",
		AttemptedTiers:    []string{"tiny", "base"},
		AudioScore:        intp(60),
		AudioLevel:        "ACCEPTABLE",
		TranscriptScore:   intp(85),
		TranscriptLevel:   "GOOD",
		Enhanced:          true,
		EnhancementPreset: "STANDARD",
		WarningCount:      1,
		Summary:           "ok",
		StartedAt:         base,
		Duration:          1500 * time.Millisecond,
	}
	second := history.Record{
		RunID:       "run-2",
		Fingerprint: "abc",
		SourcePath:  "/in/a-copy.wav",
		Status:      history.StatusCacheHit,
		CacheHit:    true,
		StartedAt:   base.Add(time.Minute),
	}
	for _, rec := range []history.Record{first, second} {
		if _, err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record %s: %v", rec.RunID, err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	got := recent[1]
	if got.ChosenTier != "base" || len(got.AttemptedTiers) != 2 || got.AttemptedTiers[1] != "base" {
		t.Fatalf("unexpected tiers %+v", got)
	}
	if got.AudioScore == nil || *got.AudioScore != 60 || got.TranscriptScore == nil || *got.TranscriptScore != 85 {
		t.Fatalf("unexpected scores %+v", got)
	}
	if !got.Enhanced || got.EnhancementPreset != "STANDARD" || got.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.StartedAt.Equal(base) {
		t.Fatalf("expected started_at %v, got %v", base, got.StartedAt)
	}
	if recent[0].AudioScore != nil || recent[0].AttemptedTiers == nil {
		t.Fatalf("expected nil score and empty tiers for cache hit, got %+v", recent[0])
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Recent(1): %d records, err=%v", len(limited), err)
	}
}

func TestQueriesAndSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour)

	records := []history.Record{
		{RunID: "a", Fingerprint: "f1", SourcePath: "a", Status: history.StatusSucceeded, StartedAt: old},
		{RunID: "b", Fingerprint: "f2", SourcePath: "b", Status: history.StatusFailed, FailedStage: "analyzing", ErrorKind: "external_tool", ErrorMessage: "ffmpeg exploded"},
		{RunID: "c", Fingerprint: "f1", SourcePath: "c", Status: history.StatusCacheHit, CacheHit: true},
	}
	for _, rec := range records {
		if _, err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	byFP, err := store.ByFingerprint(ctx, "f1", 0)
	if err != nil || len(byFP) != 2 {
		t.Fatalf("ByFingerprint: %d records, err=%v", len(byFP), err)
	}
	failed, err := store.ByStatus(ctx, history.StatusFailed, 0)
	if err != nil || len(failed) != 1 || failed[0].ErrorMessage != "ffmpeg exploded" || failed[0].FailedStage != "analyzing" {
		t.Fatalf("ByStatus: %+v err=%v", failed, err)
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != (history.Summary{Runs: 3, Succeeded: 1, Failed: 1, CacheHits: 1}) {
		t.Fatalf("unexpected summary %+v", summary)
	}

	removed, err := store.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("PruneBefore: removed=%d err=%v", removed, err)
	}
}

func TestRecordValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if _, err := store.Record(ctx, history.Record{Status: history.StatusFailed}); err == nil {
		t.Fatal("expected error without run id")
	}
	if _, err := store.Record(ctx, history.Record{RunID: "x"}); err == nil {
		t.Fatal("expected error without status")
	}
	if _, err := store.Record(ctx, history.Record{RunID: "dup", SourcePath: "a", Status: history.StatusFailed}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := store.Record(ctx, history.Record{RunID: "dup", SourcePath: "a", Status: history.StatusFailed}); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Record(context.Background(), history.Record{RunID: "r", SourcePath: "a", Status: history.StatusSucceeded}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 0)
	if err != nil || len(recent) != 1 {
		t.Fatalf("expected persisted run, got %d err=%v", len(recent), err)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
	if _, err := history.Open("  "); err == nil || errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected path error, got %v", err)
	}
}
