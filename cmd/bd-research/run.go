// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/bd-research/internal/history"
	"github.com/pdiddy/bd-research/internal/orchestrator"
	"github.com/pdiddy/bd-research/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research a sector and produce a validated opportunity report",
	Long: `Run submits a research job for the given sector and signals, extracts
opportunities from its report, looks up internal credentials for each,
and prints a short report. Research text streams to stderr while the job
runs.

With --research-file the research job is skipped and the file's markdown
is used as the research output.`,
	RunE: runRun,
}

func init() {
	addTriggerFlags(runCmd)
	runCmd.Flags().String("research-file", "", "use this markdown file instead of running a research job")
	runCmd.Flags().String("format", "markdown", "output format: markdown, json, or yaml")
	runCmd.Flags().Bool("history", false, "record the run in the history store")
	runCmd.Flags().Bool("quiet", false, "do not stream progress to stderr")

	rootCmd.AddCommand(runCmd)
}

func addTriggerFlags(cmd *cobra.Command) {
	cmd.Flags().String("sector", "", "sector or industry to research (required)")
	cmd.Flags().StringArray("signal", nil, "signal to look for (repeatable)")
	cmd.Flags().String("company", "", "company or topic focus")
	cmd.Flags().String("geography", "", "geographic focus")
	cmd.Flags().Int64("min-value", 0, "minimum opportunity value in USD")
	cmd.Flags().Int("time-window", 0, "look-back window in days (default 30)")
	cmd.Flags().StringArray("service-line", nil, "service line to prioritize (repeatable)")
	cmd.Flags().String("context", "", "additional guidance for the research job")
	cmd.Flags().Int("max-opportunities", 0, "maximum opportunities to look up and report")
}

func triggerFromFlags(cmd *cobra.Command) types.ResearchTrigger {
	var t types.ResearchTrigger
	t.Sector, _ = cmd.Flags().GetString("sector")
	t.Signals, _ = cmd.Flags().GetStringArray("signal")
	t.Company, _ = cmd.Flags().GetString("company")
	t.Geography, _ = cmd.Flags().GetString("geography")
	t.MinValueUSD, _ = cmd.Flags().GetInt64("min-value")
	t.TimeWindowDays, _ = cmd.Flags().GetInt("time-window")
	t.ServiceLines, _ = cmd.Flags().GetStringArray("service-line")
	t.OtherContext, _ = cmd.Flags().GetString("context")
	t.MaxOpportunities, _ = cmd.Flags().GetInt("max-opportunities")
	return t
}

func runRun(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	trigger := triggerFromFlags(cmd)
	if err := trigger.Validate(); err != nil {
		return err
	}

	cfg := loadConfig(viper.GetViper(), loadedSecrets)
	if record, _ := cmd.Flags().GetBool("history"); record {
		cfg.History.Enabled = true
	}

	var recorder orchestrator.Recorder
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	shared := orchestrator.NewShared(cfg, nil, logger)
	orch, err := orchestrator.FromConfig(cfg, shared, recorder, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var progress orchestrator.ProgressFunc
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		progress = progressPrinter(os.Stderr)
	}

	var report types.FinalReport
	if path, _ := cmd.Flags().GetString("research-file"); path != "" {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading research file: %w", err)
		}
		report, err = orch.RunWithText(ctx, trigger, string(text), progress)
		if err != nil {
			return err
		}
	} else {
		report, err = orch.Run(ctx, trigger, progress)
		if err != nil {
			return err
		}
	}

	if progress != nil {
		fmt.Fprintln(os.Stderr)
	}
	return writeReport(os.Stdout, report, format)
}

// progressPrinter streams research text as it arrives and prints a line
// for every other step.
func progressPrinter(w io.Writer) orchestrator.ProgressFunc {
	return func(step, message string) {
		if step == types.StepJob {
			fmt.Fprint(w, message)
			return
		}
		fmt.Fprintf(w, "\n==> %s\n", message)
	}
}
