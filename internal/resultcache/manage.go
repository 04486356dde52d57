package resultcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"scribe/internal/fingerprint"
	"scribe/internal/logging"
)

// DefaultPurgeDays is the retention used when no age is given.
const DefaultPurgeDays = 30

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Stats describes current cache usage.
type Stats struct {
	Entries      int     `json:"entries"`
	Files        int     `json:"files"`
	TotalBytes   int64   `json:"totalBytes"`
	Orphans      int     `json:"orphans"`
	FreeBytes    uint64  `json:"freeBytes"`
	TotalFSBytes uint64  `json:"totalFsBytes"`
	FreeRatio    float64 `json:"freeRatio"`
}

// List returns the metadata of every entry, newest first. Unreadable
// metadata records are logged and skipped.
func (c *Cache) List(ctx context.Context) ([]Metadata, error) {
	if c == nil {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Metadata{}, nil
		}
		return nil, fmt.Errorf("resultcache: list root: %w", err)
	}
	out := make([]Metadata, 0, len(dirEntries))
	for _, entry := range dirEntries {
		fp, ok := keyFromName(entry.Name(), metaSuffix)
		if !ok || entry.IsDir() {
			continue
		}
		meta, _, err := readMetadata(filepath.Join(c.root, entry.Name()))
		if err != nil {
			logging.WarnWithContext(c.logger, "skipping unreadable cache metadata", "resultcache_entry_skipped",
				logging.String(logging.FieldFingerprint, fp),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the entry with scribe cache delete"),
				logging.String(logging.FieldImpact, "entry excluded from listing and purge"),
			)
			continue
		}
		out = append(out, meta)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Hash < out[j].Hash
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeOlderThan deletes entries created more than days ago and returns how
// many were removed.
func (c *Cache) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if c == nil {
		return 0, nil
	}
	if days < 0 {
		return 0, fmt.Errorf("resultcache: purge age must not be negative, got %d", days)
	}
	entries, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, meta := range entries {
		if !meta.CreatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := c.Delete(ctx, meta.Hash)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	c.logger.InfoContext(ctx, "purged result cache",
		logging.Int("removed", removed),
		logging.Int("older_than_days", days),
	)
	return removed, nil
}

// Stats returns entry and file counts, artifact sizes and filesystem free space.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if c == nil {
		return s, nil
	}
	dirEntries, err := os.ReadDir(c.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return s, fmt.Errorf("resultcache: list root: %w", err)
	}
	entries := make(map[string]bool)
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		fp, ok := artifactKey(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		s.Files++
		s.TotalBytes += info.Size()
		if strings.HasSuffix(entry.Name(), metaSuffix) {
			entries[fp] = true
		} else if _, seen := entries[fp]; !seen {
			entries[fp] = false
		}
	}
	for _, complete := range entries {
		if complete {
			s.Entries++
		} else {
			s.Orphans++
		}
	}

	statRoot := c.root
	if _, err := os.Stat(statRoot); err != nil {
		statRoot = filepath.Dir(statRoot)
	}
	total, free, err := c.statfs(statRoot)
	if err != nil {
		return s, fmt.Errorf("resultcache: statfs: %w", err)
	}
	s.TotalFSBytes = total
	s.FreeBytes = free
	s.FreeRatio = 1.0
	if total > 0 {
		s.FreeRatio = float64(free) / float64(total)
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}
	return s, nil
}

// artifactKey returns the fingerprint prefix of a cache artifact name.
func artifactKey(name string) (string, bool) {
	for _, suffix := range []string{metaSuffix, subtitleSuffix, payloadSuffix} {
		if fp, ok := keyFromName(name, suffix); ok {
			return fp, true
		}
	}
	return "", false
}

func keyFromName(name, suffix string) (string, bool) {
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	fp := strings.TrimSuffix(name, suffix)
	return fp, fingerprint.Valid(fp)
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
