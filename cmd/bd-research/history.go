// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/bd-research/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show, and export recorded research runs",
	Long: `History reads the local SQLite run history written by run --history
(or history.enabled in the config file).`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Print the report of one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded reports to YAML or JSON",
	Long: `Export writes the recorded reports (or a filtered subset) to
export.yaml or export.json in the history directory. Supports the same
filter flags as list.`,
	RunE: runHistoryExport,
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg := loadConfig(viper.GetViper(), loadedSecrets)
	if dir, _ := cmd.Flags().GetString("history-dir"); dir != "" {
		cfg.History.Dir = dir
	}
	return history.NewStore(cfg.History)
}

func queryOptsFromFlags(cmd *cobra.Command) (history.QueryOptions, error) {
	var opts history.QueryOptions
	opts.Sector, _ = cmd.Flags().GetString("sector")
	opts.Company, _ = cmd.Flags().GetString("company")
	opts.DegradedOnly, _ = cmd.Flags().GetBool("degraded")
	opts.MaxResults, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetString("since"); since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return opts, fmt.Errorf("invalid --since %q: use YYYY-MM-DD", since)
		}
		opts.Since = t
	}
	return opts, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := queryOptsFromFlags(cmd)
	if err != nil {
		return err
	}
	runs, err := store.List(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeReport(os.Stdout, runs, "json")
	}
	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(w io.Writer, runs []history.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-16s  %-40s  %-5s  %s\n", "Run", "Generated", "Request", "Opps", "Degraded")
	fmt.Fprintln(w, strings.Repeat("-", 115))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-16s  %-40s  %-5d  %t\n",
			r.RunID, r.GeneratedAt.Format("2006-01-02 15:04"), clip(r.TriggerSummary, 40), r.Opportunities, r.Degraded)
	}
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if showTrace, _ := cmd.Flags().GetBool("trace"); showTrace {
		entries, err := store.Trace(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-9s  %s\n", e.At.Format(time.TimeOnly), e.Step, e.Message)
		}
		return nil
	}

	report, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	return writeReport(os.Stdout, report, format)
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := queryOptsFromFlags(cmd)
	if err != nil {
		return err
	}

	var path string
	switch format, _ := cmd.Flags().GetString("format"); format {
	case "yaml", "":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

func init() {
	historyCmd.PersistentFlags().String("history-dir", "", "history directory (default from config: history)")

	for _, c := range []*cobra.Command{historyListCmd, historyExportCmd} {
		c.Flags().String("sector", "", "filter by sector")
		c.Flags().String("company", "", "filter by company (substring)")
		c.Flags().Bool("degraded", false, "only partial reports")
		c.Flags().String("since", "", "only runs on or after this date (YYYY-MM-DD)")
	}
	historyListCmd.Flags().Int("limit", 0, "maximum runs (0 = use default)")
	historyListCmd.Flags().Bool("json", false, "output runs as JSON")

	historyShowCmd.Flags().String("format", "markdown", "output format: markdown, json, or yaml")
	historyShowCmd.Flags().Bool("trace", false, "print the execution trace instead of the report")

	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
