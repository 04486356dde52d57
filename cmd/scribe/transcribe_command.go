package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scribe/internal/artifacts"
	"scribe/internal/config"
	"scribe/internal/orchestrator"
)

type transcribeFlags struct {
	outputDir string
	language  string
	tier      string
	refresh   bool
	noEnhance bool
	correct   bool
	noCorrect bool
	noWrite   bool
	jsonOut   bool
}

// transcribeOutcome is the per-file JSON shape of `scribe transcribe --json`.
type transcribeOutcome struct {
	Path   string               `json:"path"`
	Result *orchestrator.Result `json:"result,omitempty"`
	Files  *artifacts.Files     `json:"files,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe <file>...",
		Short: "Transcribe audio or video files",
		Long: `Transcribe one or more files. Each file is fingerprinted and served from
the result cache when possible. Otherwise the audio is scored, enhanced when
needed, and recognised with the cheapest tier the audio quality allows,
falling back to stronger tiers until the transcript is acceptable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := flags.options(cfg)
			if err != nil {
				return err
			}
			outputDir := strings.TrimSpace(flags.outputDir)
			if outputDir == "" {
				outputDir = cfg.Paths.OutputDir
			} else if outputDir, err = config.ExpandPath(outputDir); err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}

			rt, closeRuntime, err := ctx.runtime(nil)
			if err != nil {
				return err
			}
			defer closeRuntime()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			outcomes := make([]transcribeOutcome, 0, len(args))
			failed := 0
			for _, path := range args {
				outcome := transcribeOutcome{Path: path}
				res, runErr := rt.Run(runCtx, path, opts)
				outcome.Result = res
				if runErr == nil && !flags.noWrite {
					files, writeErr := artifacts.Write(outputDir, res)
					if writeErr != nil {
						runErr = writeErr
					} else {
						outcome.Files = &files
					}
				}
				if runErr != nil {
					failed++
					outcome.Error = runErr.Error()
				}
				outcomes = append(outcomes, outcome)
				if !flags.jsonOut {
					printTranscribeOutcome(out, outcome, colorize)
				}
				if runCtx.Err() != nil {
					break
				}
			}

			if flags.jsonOut {
				var payload any = outcomes
				if len(outcomes) == 1 {
					payload = outcomes[0]
				}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
			}
			if err := runCtx.Err(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Directory for transcript files (default: paths.output_dir)")
	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Language hint such as en or German (default: recognition.language)")
	cmd.Flags().StringVar(&flags.tier, "tier", "", "Use only this tier and disable fallback")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "Ignore cached results and store a fresh one")
	cmd.Flags().BoolVar(&flags.noEnhance, "no-enhance", false, "Skip audio enhancement")
	cmd.Flags().BoolVar(&flags.correct, "correct", false, "Run the correction pass even if disabled in config")
	cmd.Flags().BoolVar(&flags.noCorrect, "no-correct", false, "Skip the correction pass")
	cmd.Flags().BoolVar(&flags.noWrite, "no-write", false, "Do not write transcript files")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Output results as JSON")
	cmd.MarkFlagsMutuallyExclusive("correct", "no-correct")

	return cmd
}

// options layers the command flags over the configured run options.
func (f transcribeFlags) options(cfg *config.Config) (orchestrator.Options, error) {
	opts := orchestrator.OptionsFromConfig(cfg)
	if lang := strings.TrimSpace(f.language); lang != "" {
		opts.Language = lang
	}
	if tier := strings.TrimSpace(f.tier); tier != "" {
		opts.ManualTier = tier
		opts.FallbackEnabled = false
	}
	opts.Refresh = f.refresh
	if f.noEnhance {
		opts.EnhancementEnabled = false
	}
	switch {
	case f.correct:
		if strings.TrimSpace(cfg.Correction.APIKey) == "" {
			return opts, errors.New("--correct needs a correction API key (set [correction] api_key or SCRIBE_LLM_API_KEY)")
		}
		opts.CorrectionEnabled = true
	case f.noCorrect:
		opts.CorrectionEnabled = false
	}
	return opts, nil
}

func printTranscribeOutcome(out io.Writer, outcome transcribeOutcome, colorize bool) {
	name := filepath.Base(outcome.Path)
	res := outcome.Result
	switch {
	case outcome.Error != "":
		fmt.Fprintln(out, renderStatusLine(name, statusError, outcome.Error, colorize))
	case res != nil && res.CacheHit:
		fmt.Fprintln(out, renderStatusLine(name, statusInfo, "cached ("+orDash(res.ChosenTier)+")", colorize))
	case res != nil && len(res.Warnings) > 0:
		fmt.Fprintln(out, renderStatusLine(name, statusWarn, "transcribed ("+orDash(res.ChosenTier)+")", colorize))
	default:
		tier := ""
		if res != nil {
			tier = res.ChosenTier
		}
		fmt.Fprintln(out, renderStatusLine(name, statusOK, "transcribed ("+orDash(tier)+")", colorize))
	}
	if res != nil && strings.TrimSpace(res.Summary) != "" {
		fmt.Fprintf(out, "%s%s\n", statusIndent+statusIndent, res.Summary)
	}
	if outcome.Files != nil {
		for _, path := range []string{outcome.Files.Text, outcome.Files.Subtitles, outcome.Files.JSON} {
			if path != "" {
				fmt.Fprintf(out, "%s-> %s\n", statusIndent+statusIndent, path)
			}
		}
	}
}
