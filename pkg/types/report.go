// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// ValidationStatus summarizes how well internal data supports an opportunity.
type ValidationStatus string

const (
	Validated      ValidationStatus = "Validated"
	PartialSupport ValidationStatus = "Partial"
	NoInternalData ValidationStatus = "No Internal Data"
)

// StatusFor grades a lookup result: two or more matches validate, one is
// partial, none (including failed lookups) is no internal data.
func StatusFor(r LookupResult) ValidationStatus {
	switch {
	case r.NoMatch || len(r.Matches) == 0:
		return NoInternalData
	case len(r.Matches) >= 2:
		return Validated
	default:
		return PartialSupport
	}
}

// ReportOpportunity pairs an opportunity with its lookup outcome.
type ReportOpportunity struct {
	Opportunity Opportunity      `json:"opportunity" yaml:"opportunity"`
	Lookup      LookupResult     `json:"lookup" yaml:"lookup"`
	Validation  ValidationStatus `json:"validation" yaml:"validation"`
}

// FinalReport is the terminal artifact of one orchestration run. It is not
// modified after the orchestrator returns it.
type FinalReport struct {
	RunID              string              `json:"run_id" yaml:"run_id"`
	Trigger            ResearchTrigger     `json:"trigger" yaml:"trigger"`
	TriggerSummary     string              `json:"trigger_summary" yaml:"trigger_summary"`
	ExecutiveSummary   string              `json:"executive_summary" yaml:"executive_summary"`
	TopOpportunities   []ReportOpportunity `json:"top_opportunities" yaml:"top_opportunities"`
	Signals            []string            `json:"signals,omitempty" yaml:"signals,omitempty"`
	RecommendedActions []string            `json:"recommended_actions,omitempty" yaml:"recommended_actions,omitempty"`
	Citations          []string            `json:"citations,omitempty" yaml:"citations,omitempty"`
	ConfidenceNote     string              `json:"confidence_note,omitempty" yaml:"confidence_note,omitempty"`

	// Degraded is set when any non-fatal stage failed and the report is partial.
	Degraded bool     `json:"degraded" yaml:"degraded"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`

	Trace       ExecutionTrace `json:"trace" yaml:"trace"`
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
}

// Markdown renders the report for a terminal or chat surface. Degraded
// sections are shown with an explicit indicator rather than omitted.
func (r FinalReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintln(&b, "# BD Research Report")
	fmt.Fprintf(&b, "*Generated: %s*\n\n", r.GeneratedAt.Format("2006-01-02 15:04"))
	if r.TriggerSummary != "" {
		fmt.Fprintf(&b, "**Request**: %s\n\n", r.TriggerSummary)
	}

	if r.Degraded {
		fmt.Fprintln(&b, "> **Partial report**: some stages did not complete.")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "> - %s\n", e)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b, "## Executive Summary")
	summary := r.ExecutiveSummary
	if summary == "" {
		summary = "No executive summary available."
	}
	fmt.Fprintf(&b, "%s\n\n", summary)

	fmt.Fprintln(&b, "## Top Opportunities")
	if len(r.TopOpportunities) == 0 {
		fmt.Fprintln(&b, "No structured opportunities were found.")
		fmt.Fprintln(&b)
	}
	for i, ro := range r.TopOpportunities {
		opp := ro.Opportunity
		fmt.Fprintf(&b, "### %d. %s\n", i+1, opp.Title)
		if opp.Agency != "" {
			fmt.Fprintf(&b, "**Agency**: %s\n", opp.Agency)
		}
		if opp.EstimatedValue != "" {
			fmt.Fprintf(&b, "**Value**: %s\n", opp.EstimatedValue)
		}
		if opp.Timeline != "" {
			fmt.Fprintf(&b, "**Timeline**: %s\n", opp.Timeline)
		}
		fmt.Fprintf(&b, "**Confidence**: %s\n", opp.Confidence)
		fmt.Fprintf(&b, "**Validation**: %s\n", ro.Validation)
		if ro.Lookup.NoMatch {
			fmt.Fprintln(&b, "No credentials found.")
		} else {
			fmt.Fprintln(&b, "\n**Supporting Credentials**:")
			for _, m := range ro.Lookup.Matches {
				if m.URL != "" {
					fmt.Fprintf(&b, "- [%s](%s)\n", m.Title, m.URL)
				} else {
					fmt.Fprintf(&b, "- %s\n", m.Title)
				}
			}
		}
		fmt.Fprintln(&b)
	}

	writeBullets(&b, "Signals Detected", r.Signals)
	writeBullets(&b, "Recommended Actions", r.RecommendedActions)
	writeBullets(&b, "Sources", r.Citations)

	if r.ConfidenceNote != "" {
		fmt.Fprintf(&b, "---\n*%s*\n", r.ConfidenceNote)
	}
	return b.String()
}

func writeBullets(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	fmt.Fprintln(b)
}
