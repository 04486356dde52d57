package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/tiers"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and download recognition models",
	}
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsDownloadCommand(ctx))
	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the recognition tier catalogue, cheapest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalogue, err := tiers.FromConfig(cfg.Recognition.Tiers)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, catalogue.Tiers())
			}
			rows := make([][]string, 0, catalogue.Len())
			for _, tier := range catalogue.Tiers() {
				rows = append(rows, []string{
					tier.Name,
					tier.Model,
					fmt.Sprintf("%d", tier.MinAudioQuality),
					tier.Description,
				})
			}
			printTable(cmd.OutOrStdout(),
				[]string{"Tier", "Model", "Min audio", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newModelsDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download [tier]...",
		Short: "Pre-fetch model weights for every tier or the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRuntime, err := ctx.runtime(nil)
			if err != nil {
				return err
			}
			defer closeRuntime()
			if rt.Whisper == nil {
				return errors.New("recognition runner is not configured")
			}

			catalogue := rt.Catalogue()
			selected := catalogue.Tiers()
			if len(args) > 0 {
				selected = make([]tiers.Tier, 0, len(args))
				for _, name := range args {
					tier, ok := catalogue.Lookup(name)
					if !ok {
						return fmt.Errorf("unknown tier %q (known: %s)", name, strings.Join(catalogue.Names(), ", "))
					}
					selected = append(selected, tier)
				}
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := 0
			for _, tier := range selected {
				fmt.Fprintf(out, "%sDownloading %s (%s)...\n", statusIndent, tier.Name, tier.Model)
				if err := rt.Whisper.Download(cmd.Context(), tier.Model); err != nil {
					failed++
					fmt.Fprintln(out, renderStatusLine(tier.Name, statusError, err.Error(), colorize))
					continue
				}
				fmt.Fprintln(out, renderStatusLine(tier.Name, statusOK, "ready", colorize))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d model downloads failed", failed, len(selected))
			}
			return nil
		},
	}
}
