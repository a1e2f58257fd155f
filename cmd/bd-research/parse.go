// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/bd-research/internal/extract"
	"github.com/pdiddy/bd-research/pkg/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Show the opportunities extracted from a research report",
	Long: `Parse runs the research extractor on a markdown file and prints the
opportunities, signals, and citations it finds. No services are called.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().Bool("json", false, "output the parsed research as JSON")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	research, err := extract.ParseResearch(string(data))
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeReport(os.Stdout, research, "json")
	}
	printResearch(os.Stdout, research)
	return nil
}

func printResearch(w io.Writer, r types.ResearchOutput) {
	if len(r.Opportunities) == 0 {
		fmt.Fprintln(w, "No opportunities found.")
	} else {
		fmt.Fprintf(w, "%-4s  %-40s  %-20s  %-15s  %s\n", "Rank", "Title", "Agency", "Value", "Confidence")
		fmt.Fprintln(w, strings.Repeat("-", 95))
		for i, o := range r.Opportunities {
			fmt.Fprintf(w, "%-4d  %-40s  %-20s  %-15s  %s\n",
				i+1, clip(o.Title, 40), clip(o.Agency, 20), clip(o.EstimatedValue, 15), o.Confidence)
		}
	}
	fmt.Fprintf(w, "\n%d opportunities, %d signals, %d actions, %d citations\n",
		len(r.Opportunities), len(r.Signals), len(r.RecommendedActions), len(r.Citations))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
