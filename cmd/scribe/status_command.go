package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/deps"
	"scribe/internal/preflight"
	"scribe/internal/tiers"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency, directory, cache and history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection(stdout, "Dependencies", colorize)
			for _, line := range dependencyLines(preflight.CheckSystemDeps(cmd.Context(), cfg), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Directories", colorize)
			for _, line := range directoryLines(cfg, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Recognition", colorize)
			for _, line := range recognitionLines(cfg, colorize) {
				fmt.Fprintln(stdout, line)
			}
			correction := preflight.CheckCorrectionFromConfig(cmd.Context(), cfg)
			detail := correction.Detail
			if cfg.Correction.Enabled && correction.Passed {
				detail = fmt.Sprintf("%s (model: %s)", detail, cfg.CorrectionLLM().Model)
			}
			fmt.Fprintln(stdout, renderStatusLine("Correction", correctionKind(cfg, correction), detail, colorize))
			fmt.Fprintln(stdout)

			printSection(stdout, "Cache", colorize)
			cache, warn, err := ctx.resultCache()
			switch {
			case err != nil:
				fmt.Fprintln(stdout, renderStatusLine("Result cache", statusError, err.Error(), colorize))
			case cache == nil:
				fmt.Fprintln(stdout, renderStatusLine("Result cache", statusInfo, warn, colorize))
			default:
				stats, err := cache.Stats(cmd.Context())
				if err != nil {
					fmt.Fprintln(stdout, renderStatusLine("Result cache", statusError, err.Error(), colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("Result cache", statusOK,
						fmt.Sprintf("%d entries, %s", stats.Entries, humanBytes(stats.TotalBytes)), colorize))
				}
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "History", colorize)
			store, err := ctx.openHistory()
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Run history", statusError, err.Error(), colorize))
				return nil
			}
			defer store.Close()
			summary, err := store.Summarize(cmd.Context())
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Run history", statusError, err.Error(), colorize))
				return nil
			}
			rows := [][]string{
				{"Runs", fmt.Sprintf("%d", summary.Runs)},
				{"Succeeded", fmt.Sprintf("%d", summary.Succeeded)},
				{"Failed", fmt.Sprintf("%d", summary.Failed)},
				{"Cache hits", fmt.Sprintf("%d", summary.CacheHits)},
			}
			printTable(stdout, []string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}
}

func printSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		if !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func directoryLines(cfg *config.Config, colorize bool) []string {
	type dir struct {
		label string
		path  string
	}
	dirs := []dir{
		{"Work directory", cfg.Paths.WorkDir},
		{"Output directory", cfg.Paths.OutputDir},
		{"Log directory", cfg.Paths.LogDir},
	}
	if cfg.Cache.Enabled {
		dirs = append(dirs, dir{"Cache directory", cfg.Cache.Dir})
	}
	lines := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		lines = append(lines, directoryStatusLine(d.label, d.path, colorize))
	}
	if strings.TrimSpace(cfg.Inbox.Dir) == "" {
		lines = append(lines, renderStatusLine("Inbox directory", statusInfo, "Not configured", colorize))
	} else {
		lines = append(lines, directoryStatusLine("Inbox directory", cfg.Inbox.Dir, colorize))
	}
	return lines
}

func directoryStatusLine(label, path string, colorize bool) string {
	result := preflight.CheckDirectoryAccess(label, path)
	if result.Passed {
		return renderStatusLine(label, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(label, statusError, result.Detail, colorize)
}

func recognitionLines(cfg *config.Config, colorize bool) []string {
	catalogue, err := tiers.FromConfig(cfg.Recognition.Tiers)
	if err != nil {
		return []string{renderStatusLine("Tier catalogue", statusError, err.Error(), colorize)}
	}
	lines := []string{
		renderStatusLine("Tier catalogue", statusOK, strings.Join(catalogue.Names(), " -> "), colorize),
	}
	if cfg.Recognition.FallbackEnabled {
		lines = append(lines, renderStatusLine("Fallback", statusOK, "Enabled", colorize))
	} else {
		lines = append(lines, renderStatusLine("Fallback", statusInfo, "Disabled (manual tier: "+orDash(cfg.Recognition.ManualTier)+")", colorize))
	}
	lang := strings.TrimSpace(cfg.Recognition.Language)
	if lang == "" {
		lang = "auto-detect"
	}
	lines = append(lines, renderStatusLine("Language", statusInfo, lang, colorize))
	lines = append(lines, renderStatusLine("Enhancement", statusInfo, yesNo(cfg.Audio.EnhancementEnabled), colorize))
	return lines
}

func correctionKind(cfg *config.Config, result preflight.Result) statusKind {
	switch {
	case !cfg.Correction.Enabled:
		return statusInfo
	case result.Passed:
		return statusOK
	default:
		return statusWarn
	}
}
