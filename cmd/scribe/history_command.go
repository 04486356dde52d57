package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit       int
		status      string
		fingerprint string
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transcription runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			var records []history.Record
			switch {
			case strings.TrimSpace(fingerprint) != "":
				records, err = store.ByFingerprint(cmd.Context(), strings.ToLower(strings.TrimSpace(fingerprint)), limit)
			case strings.TrimSpace(status) != "":
				st, parseErr := parseHistoryStatus(status)
				if parseErr != nil {
					return parseErr
				}
				records, err = store.ByStatus(cmd.Context(), st, limit)
			default:
				records, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			summary, err := store.Summarize(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, struct {
					Summary history.Summary  `json:"summary"`
					Runs    []history.Record `json:"runs"`
				}{summary, records})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Runs: %d (%d succeeded, %d failed, %d cache hits)\n",
				summary.Runs, summary.Succeeded, summary.Failed, summary.CacheHits)
			if len(records) == 0 {
				fmt.Fprintln(out, "No matching runs")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, historyRow(rec))
			}
			printTable(out,
				[]string{"Started", "Source", "Status", "Tier", "Tried", "Audio", "Transcript", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (succeeded, failed, cache_hit)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Filter by content fingerprint")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("status", "fingerprint")
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete run records older than N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			removed, err := store.PruneBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d runs older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "Age threshold in days")
	return cmd
}

func parseHistoryStatus(value string) (history.Status, error) {
	switch st := history.Status(strings.ToLower(strings.TrimSpace(value))); st {
	case history.StatusSucceeded, history.StatusFailed, history.StatusCacheHit:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q (want succeeded, failed, or cache_hit)", value)
	}
}

func historyRow(rec history.Record) []string {
	status := string(rec.Status)
	if rec.Status == history.StatusFailed && rec.FailedStage != "" {
		status = fmt.Sprintf("%s (%s)", status, strings.ToLower(rec.FailedStage))
	}
	return []string{
		rec.StartedAt.Local().Format(stampLayout),
		shortenPath(rec.SourcePath, 40),
		status,
		orDash(rec.ChosenTier),
		orDash(strings.Join(rec.AttemptedTiers, ",")),
		optionalScore(rec.AudioScore, rec.AudioLevel),
		optionalScore(rec.TranscriptScore, rec.TranscriptLevel),
		humanDuration(rec.Duration),
	}
}

// shortenPath keeps the tail of long paths, which carries the file name.
func shortenPath(path string, max int) string {
	runes := []rune(path)
	if len(runes) <= max || max < 4 {
		return orDash(path)
	}
	return "..." + string(runes[len(runes)-(max-3):])
}
