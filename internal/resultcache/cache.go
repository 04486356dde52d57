package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/fingerprint"
	"scribe/internal/logging"
	"scribe/internal/services"
)

const (
	payloadSuffix  = ".json"
	subtitleSuffix = ".srt"
	metaSuffix     = ".meta.json"
	lockSuffix     = ".lock"
)

var (
	// ErrInvalidKey reports a key that is not a fingerprint digest.
	ErrInvalidKey = errors.New("resultcache: invalid fingerprint")
	// ErrCorrupt reports an entry whose metadata exists but whose payload is
	// missing or unreadable.
	ErrCorrupt = errors.New("resultcache: corrupt entry")
)

// Entry is one cached result.
type Entry struct {
	Metadata  Metadata        `json:"metadata"`
	Payload   json.RawMessage `json:"payload"`
	Subtitles string          `json:"subtitles,omitempty"`
}

// Location lists the artifact paths for one fingerprint.
type Location struct {
	Payload   string `json:"payload"`
	Subtitles string `json:"subtitles,omitempty"`
	Metadata  string `json:"metadata"`
}

// Cache is the on-disk content-addressed result store.
type Cache struct {
	root   string
	logger *slog.Logger
	statfs statfsFunc
	now    func() time.Time
}

// New constructs a cache rooted at dir. The directory is created on first Put.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "cache directory not set", nil)
	}
	return &Cache{
		root:   dir,
		logger: logging.NewComponentLogger(logger, "resultcache"),
		statfs: realStatfs,
		now:    time.Now,
	}, nil
}

// NewFromConfig builds a cache when enabled; returns nil when caching is disabled.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	if cfg == nil || !cfg.Cache.Enabled {
		return nil, nil
	}
	return New(cfg.Cache.Dir, logger)
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	if c == nil {
		return ""
	}
	return c.root
}

// Paths returns the artifact locations for fp without touching the disk.
func (c *Cache) Paths(fp string) Location {
	base := filepath.Join(c.root, fp)
	return Location{
		Payload:   base + payloadSuffix,
		Subtitles: base + subtitleSuffix,
		Metadata:  base + metaSuffix,
	}
}

// Has reports whether a complete entry exists for fp.
func (c *Cache) Has(fp string) bool {
	if c == nil || !fingerprint.Valid(fp) {
		return false
	}
	loc := c.Paths(fp)
	if !fileExists(loc.Metadata) {
		return false
	}
	return fileExists(loc.Payload)
}

// Get reads the entry for fp. The boolean is false when no entry exists; a
// missing subtitle artifact is not an error.
func (c *Cache) Get(ctx context.Context, fp string) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	if !fingerprint.Valid(fp) {
		return nil, false, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	loc := c.Paths(fp)
	meta, ok, err := readMetadata(loc.Metadata)
	if err != nil || !ok {
		return nil, ok, err
	}
	if meta.Hash != fp {
		return nil, true, fmt.Errorf("%w: metadata hash %q does not match key", ErrCorrupt, meta.Hash)
	}
	payload, err := os.ReadFile(loc.Payload)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read payload: %v", ErrCorrupt, err)
	}
	if !json.Valid(payload) {
		return nil, true, fmt.Errorf("%w: payload is not valid JSON", ErrCorrupt)
	}
	entry := &Entry{Metadata: meta, Payload: json.RawMessage(payload)}
	if data, err := os.ReadFile(loc.Subtitles); err == nil {
		entry.Subtitles = string(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		c.logger.DebugContext(ctx, "subtitle artifact unreadable; returning entry without it",
			logging.String(logging.FieldFingerprint, fp),
			logging.Error(err),
		)
	}
	return entry, true, nil
}

// Put stores payload, optional subtitles and metadata for fp. An existing
// entry is hidden before the new artifacts are written, so a concurrent
// reader sees either no entry or the complete new one.
func (c *Cache) Put(ctx context.Context, fp string, payload any, subtitles string, meta Metadata) (Location, error) {
	if c == nil {
		return Location{}, errors.New("resultcache: cache disabled")
	}
	if !fingerprint.Valid(fp) {
		return Location{}, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Location{}, fmt.Errorf("resultcache: encode payload: %w", err)
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return Location{}, fmt.Errorf("resultcache: ensure cache dir: %w", err)
	}

	loc := c.Paths(fp)
	if err := removeIfExists(loc.Metadata); err != nil {
		return Location{}, fmt.Errorf("resultcache: hide previous entry: %w", err)
	}
	if err := fileutil.WriteAtomic(loc.Payload, append(data, '\n'), 0o644); err != nil {
		return Location{}, fmt.Errorf("resultcache: write payload: %w", err)
	}
	subtitles = strings.TrimSpace(subtitles)
	if subtitles != "" {
		if err := fileutil.WriteAtomic(loc.Subtitles, []byte(subtitles+"\n"), 0o644); err != nil {
			_ = os.Remove(loc.Payload)
			return Location{}, fmt.Errorf("resultcache: write subtitles: %w", err)
		}
	} else {
		if err := removeIfExists(loc.Subtitles); err != nil {
			return Location{}, fmt.Errorf("resultcache: remove stale subtitles: %w", err)
		}
		loc.Subtitles = ""
	}

	meta.Version = metadataVersion
	meta.Hash = fp
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = c.now().UTC()
	}
	meta.HasSubtitles = subtitles != ""
	if err := fileutil.WriteJSONAtomic(loc.Metadata, meta); err != nil {
		_ = os.Remove(loc.Payload)
		_ = os.Remove(loc.Subtitles)
		return Location{}, fmt.Errorf("resultcache: write metadata: %w", err)
	}

	c.logger.InfoContext(ctx, "stored result cache entry",
		logging.String(logging.FieldFingerprint, fp),
		logging.String("payload", loc.Payload),
		logging.Bool("subtitles", meta.HasSubtitles),
		logging.String(logging.FieldTier, meta.ModelTier),
	)
	return loc, nil
}

// Delete removes the cached artifacts for fp and reports whether anything
// existed. The in-flight lock file is left in place.
func (c *Cache) Delete(ctx context.Context, fp string) (bool, error) {
	if c == nil {
		return false, nil
	}
	if !fingerprint.Valid(fp) {
		return false, ErrInvalidKey
	}
	loc := c.Paths(fp)
	removed := false
	for _, path := range []string{loc.Metadata, loc.Payload, loc.Subtitles} {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return removed, fmt.Errorf("resultcache: remove %s: %w", filepath.Base(path), err)
		}
	}
	// The lock file stays: unlinking it while a run holds the flock would let
	// the next Lock take a fresh inode and skip the wait.
	if removed {
		c.logger.InfoContext(ctx, "deleted result cache entry", logging.String(logging.FieldFingerprint, fp))
	}
	return removed, nil
}

func readMetadata(path string) (Metadata, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("resultcache: read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, true, fmt.Errorf("%w: decode metadata: %v", ErrCorrupt, err)
	}
	if meta.Version != metadataVersion {
		return Metadata{}, true, fmt.Errorf("%w: unsupported metadata version %d", ErrCorrupt, meta.Version)
	}
	return meta, true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
