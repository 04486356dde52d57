package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"scribe/internal/artifacts"
	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/orchestrator"
	"scribe/internal/services"
)

// Subdirectories of the inbox that receive finished inputs.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// DefaultDebounce is how long a file must be quiet before it is queued.
const DefaultDebounce = 2 * time.Second

// Runner transcribes one file.
type Runner interface {
	Run(ctx context.Context, path string, opts orchestrator.Options) (*orchestrator.Result, error)
}

// Config configures a Watcher.
type Config struct {
	Dir        string
	OutputDir  string
	Extensions []string
	Debounce   time.Duration
	Options    orchestrator.Options
	// Notifier receives one event per finished file; nil disables it.
	Notifier notifications.Service
}

// ConfigFrom derives watcher settings from the loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Dir:        cfg.Inbox.Dir,
		OutputDir:  cfg.Paths.OutputDir,
		Extensions: append([]string(nil), cfg.Inbox.Extensions...),
		Options:    orchestrator.OptionsFromConfig(cfg),
		Notifier:   notifications.NewService(cfg),
	}
}

// Stats counts watcher activity.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// Watcher feeds inbox files to a Runner sequentially.
type Watcher struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	queue chan string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]struct{}

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// New builds a watcher. Dir and OutputDir are required.
func New(cfg Config, runner Runner, logger *slog.Logger) (*Watcher, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("inbox: directory required")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, errors.New("inbox: output directory required")
	}
	if runner == nil {
		return nil, errors.New("inbox: runner required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	exts := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	cfg.Extensions = exts
	if cfg.Notifier == nil {
		cfg.Notifier = notifications.NewService(nil)
	}
	return &Watcher{
		cfg:     cfg,
		runner:  runner,
		logger:  logging.NewComponentLogger(logger, "inbox"),
		queue:   make(chan string, 256),
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]struct{}),
	}, nil
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
	}
}

// Accepts reports whether path has a supported extension.
func (w *Watcher) Accepts(path string) bool {
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	return slices.Contains(w.cfg.Extensions, strings.ToLower(filepath.Ext(path)))
}

// Run watches the inbox until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.Dir, filepath.Join(w.cfg.Dir, ProcessedDir), filepath.Join(w.cfg.Dir, FailedDir), w.cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("inbox: ensure %s: %w", dir, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.cfg.Dir, err)
	}

	backlog, err := w.scan()
	if err != nil {
		return err
	}
	for _, path := range backlog {
		w.enqueue(path)
	}
	w.logger.Info("inbox watcher started",
		logging.String("dir", w.cfg.Dir),
		logging.String("output_dir", w.cfg.OutputDir),
		logging.Int("backlog", len(backlog)),
	)

	started := time.Now()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()

	w.loop(ctx, fsw)
	w.stopTimers()
	wg.Wait()

	stats := w.Stats()
	w.logger.Info("inbox watcher stopped",
		logging.Int64("processed", stats.Processed),
		logging.Int64("failed", stats.Failed),
		logging.Int64("skipped", stats.Skipped),
	)
	w.notify(context.WithoutCancel(ctx), notifications.EventWatchStopped, notifications.Payload{
		"processed": stats.Processed,
		"failed":    stats.Failed,
		"duration":  time.Since(started).Round(time.Second).String(),
	})
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			if !w.Accepts(event.Name) {
				w.skipped.Add(1)
				w.logger.Debug("inbox file ignored", logging.String("path", event.Name))
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some inbox events may be missed until restart"),
			)
		}
	}
}

// schedule debounces path so a file being copied is queued once it settles.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.enqueue(path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	if _, queued := w.pending[path]; queued {
		w.mu.Unlock()
		return
	}
	w.pending[path] = struct{}{}
	w.mu.Unlock()

	select {
	case w.queue <- path:
	default:
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		logging.WarnWithContext(w.logger, "inbox queue full", "inbox_queue_full",
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "restart the watcher to rescan the inbox"),
			logging.String(logging.FieldImpact, "file stays in the inbox unprocessed"),
		)
	}
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			w.mu.Lock()
			delete(w.pending, path)
			w.mu.Unlock()
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := w.ProcessFile(ctx, path); err != nil && ctx.Err() == nil {
				w.logger.Debug("inbox file failed", logging.String("path", path), logging.Error(err))
			}
		}
	}
}

// ProcessFile transcribes path, writes its artifacts and moves it out of the
// inbox. The run error, if any, is returned after the move.
func (w *Watcher) ProcessFile(ctx context.Context, path string) error {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, w.logger).With(logging.String("path", path))
	logger.Info("inbox file picked up")

	res, runErr := w.runner.Run(ctx, path, w.cfg.Options)
	if runErr != nil && ctx.Err() != nil {
		// Leave the file in place so the next start picks it up again.
		return runErr
	}

	var files artifacts.Files
	err := runErr
	if err == nil {
		files, err = artifacts.Write(w.cfg.OutputDir, res)
	}

	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		w.failed.Add(1)
		summary := ""
		if res != nil {
			summary = res.Summary
		}
		logging.WarnWithContext(logger, "inbox file failed", "inbox_file_failed",
			logging.Error(err),
			logging.String("summary", summary),
			logging.String(logging.FieldErrorHint, "inspect the file, then move it back into the inbox to retry"),
			logging.String(logging.FieldImpact, "file moved to "+FailedDir),
		)
		w.notify(ctx, notifications.EventTranscriptionFailed, notifications.Payload{
			"source":  filepath.Base(path),
			"summary": summary,
		})
	} else {
		w.processed.Add(1)
		logger.Info("inbox file transcribed",
			logging.String("text", files.Text),
			logging.String("chosen_tier", res.ChosenTier),
			logging.Bool("cache_hit", res.CacheHit),
			logging.Int("warnings", len(res.Warnings)),
		)
		w.notify(ctx, notifications.EventTranscribed, notifications.Payload{
			"source":   filepath.Base(path),
			"tier":     res.ChosenTier,
			"cacheHit": res.CacheHit,
			"warnings": len(res.Warnings),
		})
	}

	moveErr := os.MkdirAll(filepath.Join(w.cfg.Dir, dest), 0o755)
	if moveErr == nil {
		target := filepath.Join(w.cfg.Dir, dest, filepath.Base(path))
		moveErr = fileutil.MoveFile(path, uniquePath(target))
	}
	if moveErr != nil {
		logging.WarnWithContext(logger, "inbox move failed", "inbox_move_failed",
			logging.Error(moveErr),
			logging.String(logging.FieldImpact, "file will be processed again on restart"),
		)
		if err == nil {
			err = moveErr
		}
	}
	return err
}

// notify publishes event, logging delivery failures without failing the run.
func (w *Watcher) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := w.cfg.Notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(w.logger, "inbox notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "notification not delivered"),
		)
	}
}

// scan lists supported files already in the inbox, oldest first.
func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: scan %s: %w", w.cfg.Dir, err)
	}
	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, entry.Name())
		if !w.Accepts(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{path: path, mod: info.ModTime()})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].mod.Before(found[j].mod) })
	paths := make([]string, 0, len(found))
	for _, c := range found {
		paths = append(paths, c.path)
	}
	return paths, nil
}

// uniquePath appends a counter to path until it does not exist.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
