package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/inbox"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/preflight"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		dirFlag     string
		metricsBind string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Transcribe files dropped into the inbox directory",
		Long: `Watch the inbox directory and transcribe each supported file that lands in
it, one at a time. Finished inputs move to processed/ or failed/ inside the
inbox; transcripts are written to the output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dir := strings.TrimSpace(dirFlag); dir != "" {
				if cfg.Inbox.Dir, err = config.ExpandPath(dir); err != nil {
					return fmt.Errorf("resolve inbox dir: %w", err)
				}
			}
			if strings.TrimSpace(cfg.Inbox.Dir) == "" {
				return errors.New("inbox directory is not configured (set [inbox] dir or pass --dir)")
			}
			if err := os.MkdirAll(cfg.Inbox.Dir, 0o755); err != nil {
				return fmt.Errorf("create inbox dir: %w", err)
			}
			if !cmd.Flags().Changed("metrics") {
				metricsBind = cfg.Metrics.Bind
			}

			out := cmd.OutOrStdout()
			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				colorize := shouldColorize(out)
				for _, result := range failed {
					fmt.Fprintln(out, renderStatusLine(result.Name, statusError, result.Detail, colorize))
				}
				return fmt.Errorf("preflight failed: %d check(s) did not pass", len(failed))
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			recorder := metrics.NewRecorder()
			rt, closeRuntime, err := ctx.runtime(recorder)
			if err != nil {
				return err
			}
			defer closeRuntime()
			if rt.Cache != nil {
				if err := recorder.WatchCache(rt.Cache); err != nil {
					return fmt.Errorf("register cache metrics: %w", err)
				}
			}

			watchCfg := inbox.ConfigFrom(cfg)
			watchCfg.Debounce = debounce
			watcher, err := inbox.New(watchCfg, rt, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metricsErr := make(chan error, 1)
			if strings.TrimSpace(metricsBind) != "" {
				go func() {
					metricsErr <- metrics.Serve(runCtx, metricsBind, recorder, logger)
				}()
			} else {
				close(metricsErr)
			}

			fmt.Fprintf(out, "Watching %s (outputs in %s); press Ctrl+C to stop\n", watchCfg.Dir, watchCfg.OutputDir)
			watchErr := watcher.Run(runCtx)
			stop()
			if err := <-metricsErr; err != nil {
				logging.WarnWithContext(logger, "metrics endpoint stopped with error", "metrics_serve_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "metrics were unavailable for part of the session"),
				)
			}
			if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
				return watchErr
			}

			stats := watcher.Stats()
			fmt.Fprintf(out, "Stopped: %d transcribed, %d failed, %d ignored\n", stats.Processed, stats.Failed, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "dir", "", "Inbox directory (default: inbox.dir)")
	cmd.Flags().StringVar(&metricsBind, "metrics", "", "Serve Prometheus metrics on this address (default: metrics.bind)")
	cmd.Flags().DurationVar(&debounce, "debounce", inbox.DefaultDebounce, "Quiet period before a new file is picked up")
	return cmd
}
