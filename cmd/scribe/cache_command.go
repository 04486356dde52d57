package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/orchestrator"
	"scribe/internal/resultcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the result cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheShowCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheDeleteCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := ctx.resultCache()
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			entries, err := cache.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No cached results")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, meta := range entries {
				rows = append(rows, []string{
					shortFingerprint(meta.Hash),
					cacheEntryLabel(meta),
					orDash(meta.ModelTier),
					orDash(meta.Language),
					fmt.Sprintf("%d", meta.TranscriptQualityScore),
					humanDuration(meta.ProcessingDuration()),
					humanAge(meta.CreatedAt),
				})
			}
			printTable(out,
				[]string{"Fingerprint", "Source", "Tier", "Lang", "Quality", "Took", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCacheShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show one cached result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := ctx.resultCache()
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			fp, err := resolveFingerprint(cmd, cache, args[0])
			if err != nil {
				return err
			}
			entry, ok, err := cache.Get(cmd.Context(), fp)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no cached result for %s", args[0])
			}
			if jsonOut {
				return writeJSON(cmd, entry)
			}

			out := cmd.OutOrStdout()
			meta := entry.Metadata
			fmt.Fprintf(out, "Fingerprint: %s\n", meta.Hash)
			fmt.Fprintf(out, "Source:      %s (%s)\n", orDash(meta.Source.Path), humanBytes(meta.Source.SizeBytes))
			fmt.Fprintf(out, "Created:     %s (%s)\n", meta.CreatedAt.Local().Format(stampLayout), humanAge(meta.CreatedAt))
			fmt.Fprintf(out, "Tier:        %s\n", orDash(meta.ModelTier))
			fmt.Fprintf(out, "Language:    %s\n", orDash(meta.Language))
			fmt.Fprintf(out, "Segments:    %d\n", meta.SegmentCount)
			fmt.Fprintf(out, "Audio:       %d/100\n", meta.AudioQualityScore)
			fmt.Fprintf(out, "Transcript:  %d/100\n", meta.TranscriptQualityScore)
			fmt.Fprintf(out, "Enhanced:    %s\n", yesNo(meta.Enhanced))
			fmt.Fprintf(out, "Corrected:   %s\n", yesNo(meta.Corrected))
			fmt.Fprintf(out, "Subtitles:   %s\n", yesNo(meta.HasSubtitles))

			var res orchestrator.Result
			if err := json.Unmarshal(entry.Payload, &res); err == nil {
				if res.Summary != "" {
					fmt.Fprintf(out, "\n%s\n", res.Summary)
				}
				if text := strings.TrimSpace(res.Text()); text != "" {
					fmt.Fprintf(out, "\n%s\n", text)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the full entry as JSON")
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show result cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := ctx.resultCache()
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			stats, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", cache.Root())
			fmt.Fprintf(out, "Entries:   %d (%d files)\n", stats.Entries, stats.Files)
			fmt.Fprintf(out, "Size:      %s\n", humanBytes(stats.TotalBytes))
			if stats.TotalFSBytes > 0 {
				fmt.Fprintf(out, "Disk:      %s free (%.1f%%)\n", humanBytes(int64(stats.FreeBytes)), stats.FreeRatio*100)
			}
			if stats.Orphans > 0 {
				fmt.Fprintf(out, "Orphans:   %d artifact files without metadata\n", stats.Orphans)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCacheDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <fingerprint>",
		Short: "Remove one cached result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := ctx.resultCache()
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			fp, err := resolveFingerprint(cmd, cache, args[0])
			if err != nil {
				return err
			}
			removed, err := cache.Delete(cmd.Context(), fp)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "No cached result for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed cached result %s\n", shortFingerprint(fp))
			return nil
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached results older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, warn, err := ctx.resultCache()
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Cache.PurgeDays
			}
			if days <= 0 {
				days = resultcache.DefaultPurgeDays
			}
			removed, err := cache.PurgeOlderThan(cmd.Context(), days)
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No cached results older than %d days\n", days)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d cached results older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in days (default: cache.purge_days)")
	return cmd
}

// resolveFingerprint expands a unique prefix of at least 6 characters, as
// shown by `cache list`, to a full fingerprint.
func resolveFingerprint(cmd *cobra.Command, cache *resultcache.Cache, arg string) (string, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return "", errors.New("fingerprint is required")
	}
	if len(arg) == 64 {
		return arg, nil
	}
	if len(arg) < 6 {
		return "", fmt.Errorf("fingerprint prefix %q is too short (need at least 6 characters)", arg)
	}
	entries, err := cache.List(cmd.Context())
	if err != nil {
		return "", err
	}
	var matches []string
	for _, meta := range entries {
		if strings.HasPrefix(meta.Hash, arg) {
			matches = append(matches, meta.Hash)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no cached result matches %s", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("fingerprint prefix %s is ambiguous (%d matches)", arg, len(matches))
	}
}

func cacheEntryLabel(meta resultcache.Metadata) string {
	label := strings.TrimSpace(meta.Source.Name)
	if label == "" && meta.Source.Path != "" {
		label = filepath.Base(meta.Source.Path)
	}
	return orDash(label)
}
