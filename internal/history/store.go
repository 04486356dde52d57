package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the outcome of one run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCacheHit  Status = "cache_hit"
)

// Record is one row of run history. Scores are nil when the run ended before
// the corresponding analysis.
type Record struct {
	ID                int64         `json:"id"`
	RunID             string        `json:"run_id"`
	Fingerprint       string        `json:"fingerprint,omitempty"`
	SourcePath        string        `json:"source_path"`
	Status            Status        `json:"status"`
	CacheHit          bool          `json:"cache_hit"`
	ChosenTier        string        `json:"chosen_tier,omitempty"`
	AttemptedTiers    []string      `json:"attempted_tiers"`
	AudioScore        *int          `json:"audio_score,omitempty"`
	AudioLevel        string        `json:"audio_level,omitempty"`
	TranscriptScore   *int          `json:"transcript_score,omitempty"`
	TranscriptLevel   string        `json:"transcript_level,omitempty"`
	Enhanced          bool          `json:"enhanced"`
	EnhancementPreset string        `json:"enhancement_preset,omitempty"`
	Corrected         bool          `json:"corrected"`
	WarningCount      int           `json:"warning_count"`
	FailedStage       string        `json:"failed_stage,omitempty"`
	ErrorKind         string        `json:"error_kind,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	Summary           string        `json:"summary,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
}

// Summary aggregates run counts.
type Summary struct {
	Runs      int `json:"runs"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	CacheHits int `json:"cache_hits"`
}

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: database path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Record inserts one run and returns its row id.
func (s *Store) Record(ctx context.Context, rec Record) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("history: store not open")
	}
	if strings.TrimSpace(rec.RunID) == "" {
		return 0, errors.New("history: run id required")
	}
	if rec.Status == "" {
		return 0, errors.New("history: status required")
	}
	attempted := rec.AttemptedTiers
	if attempted == nil {
		attempted = []string{}
	}
	attemptedJSON, err := json.Marshal(attempted)
	if err != nil {
		return 0, fmt.Errorf("marshal attempted tiers: %w", err)
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            run_id, fingerprint, source_path, status, cache_hit, chosen_tier, attempted_tiers,
            audio_score, audio_level, transcript_score, transcript_level,
            enhanced, enhancement_preset, corrected, warning_count,
            failed_stage, error_kind, error_message, summary, started_at, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		nullableString(rec.Fingerprint),
		rec.SourcePath,
		string(rec.Status),
		boolToInt(rec.CacheHit),
		nullableString(rec.ChosenTier),
		string(attemptedJSON),
		nullableInt(rec.AudioScore),
		nullableString(rec.AudioLevel),
		nullableInt(rec.TranscriptScore),
		nullableString(rec.TranscriptLevel),
		boolToInt(rec.Enhanced),
		nullableString(rec.EnhancementPreset),
		boolToInt(rec.Corrected),
		rec.WarningCount,
		nullableString(rec.FailedStage),
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		nullableString(rec.Summary),
		startedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, "", nil, limit)
}

// ByFingerprint returns runs for one content fingerprint, newest first.
func (s *Store) ByFingerprint(ctx context.Context, fingerprint string, limit int) ([]Record, error) {
	return s.query(ctx, "WHERE fingerprint = ?", []any{fingerprint}, limit)
}

// ByStatus returns runs with the given status, newest first.
func (s *Store) ByStatus(ctx context.Context, status Status, limit int) ([]Record, error) {
	return s.query(ctx, "WHERE status = ?", []any{string(status)}, limit)
}

// Summarize counts runs by outcome.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM runs GROUP BY status")
	if err != nil {
		return sum, fmt.Errorf("summarize runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return sum, fmt.Errorf("scan summary: %w", err)
		}
		sum.Runs += count
		switch Status(status) {
		case StatusSucceeded:
			sum.Succeeded += count
		case StatusFailed:
			sum.Failed += count
		case StatusCacheHit:
			sum.CacheHits += count
		}
	}
	return sum, rows.Err()
}

// PruneBefore deletes runs started before cutoff and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

const selectColumns = `id, run_id, fingerprint, source_path, status, cache_hit, chosen_tier, attempted_tiers,
    audio_score, audio_level, transcript_score, transcript_level,
    enhanced, enhancement_preset, corrected, warning_count,
    failed_stage, error_kind, error_message, summary, started_at, duration_ms`

func (s *Store) query(ctx context.Context, where string, args []any, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store not open")
	}
	stmt := "SELECT " + selectColumns + " FROM runs " + where + " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                                                Record
		fingerprint, chosenTier, audioLevel, transcriptLvl sql.NullString
		preset, failedStage, errorKind, errorMsg, summary  sql.NullString
		audioScore, transcriptScore                        sql.NullInt64
		status, attemptedJSON, startedAt                   string
		cacheHit, enhanced, corrected                      int
		durationMS                                         int64
	)
	if err := row.Scan(
		&rec.ID, &rec.RunID, &fingerprint, &rec.SourcePath, &status, &cacheHit, &chosenTier, &attemptedJSON,
		&audioScore, &audioLevel, &transcriptScore, &transcriptLvl,
		&enhanced, &preset, &corrected, &rec.WarningCount,
		&failedStage, &errorKind, &errorMsg, &summary, &startedAt, &durationMS,
	); err != nil {
		return Record{}, fmt.Errorf("scan run: %w", err)
	}
	rec.Fingerprint = fingerprint.String
	rec.Status = Status(status)
	rec.CacheHit = cacheHit != 0
	rec.ChosenTier = chosenTier.String
	if err := json.Unmarshal([]byte(attemptedJSON), &rec.AttemptedTiers); err != nil {
		return Record{}, fmt.Errorf("decode attempted tiers: %w", err)
	}
	rec.AudioScore = intPtr(audioScore)
	rec.AudioLevel = audioLevel.String
	rec.TranscriptScore = intPtr(transcriptScore)
	rec.TranscriptLevel = transcriptLvl.String
	rec.Enhanced = enhanced != 0
	rec.EnhancementPreset = preset.String
	rec.Corrected = corrected != 0
	rec.FailedStage = failedStage.String
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMsg.String
	rec.Summary = summary.String
	if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = ts
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func intPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
