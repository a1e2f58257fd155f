// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synth composes the final report from a run's parsed research and
// lookup results. Rules is deterministic and needs no network; Analyst asks
// an assistant to write the narrative parts.
package synth

import (
	"context"
	"fmt"

	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	// DefaultReportSize is the number of opportunities a report carries.
	DefaultReportSize = 3

	maxListItems = 5
)

// FallbackNote marks a report composed by Rules after the analyst failed.
const FallbackNote = "Report generated with fallback logic due to synthesis error."

// Input is what a synthesizer works from.
type Input struct {
	Trigger  types.ResearchTrigger
	Research types.ResearchOutput

	// Lookups holds lookup results keyed by opportunity title. Opportunities
	// without an entry were not looked up.
	Lookups map[string]types.LookupResult

	// ReportSize bounds TopOpportunities. Zero uses DefaultReportSize.
	ReportSize int
}

func (in Input) size() int {
	n := in.ReportSize
	if n <= 0 {
		n = DefaultReportSize
	}
	return in.Trigger.Limit(n)
}

// lookupFor returns the lookup result for title, or a no-match marker when
// the opportunity was not looked up.
func (in Input) lookupFor(title string) types.LookupResult {
	if r, ok := in.Lookups[title]; ok {
		return r
	}
	return types.NoMatch(title, "not looked up")
}

// Synthesizer composes the content fields of a FinalReport: trigger summary,
// executive summary, top opportunities, signals, actions and confidence
// note. The caller owns run metadata such as the trace.
type Synthesizer interface {
	Synthesize(ctx context.Context, in Input) (types.FinalReport, error)
}

// Rules builds the report directly from the parsed research: the top
// opportunities in research rank order, each graded by its lookup.
type Rules struct {
	// Note overrides the generated confidence note.
	Note string
}

// Synthesize implements Synthesizer. It never fails.
func (r Rules) Synthesize(_ context.Context, in Input) (types.FinalReport, error) {
	opps := in.Research.Opportunities
	if n := in.size(); len(opps) > n {
		opps = opps[:n]
	}

	top := make([]types.ReportOpportunity, 0, len(opps))
	validated := 0
	for _, opp := range opps {
		lk := in.lookupFor(opp.Title)
		status := types.StatusFor(lk)
		if status != types.NoInternalData {
			validated++
		}
		top = append(top, types.ReportOpportunity{Opportunity: opp, Lookup: lk, Validation: status})
	}

	summary := in.Research.ExecutiveSummary
	if summary == "" {
		summary = "Analysis complete. See opportunities below."
	}
	note := r.Note
	if note == "" {
		note = fmt.Sprintf("%d of %d opportunities supported by internal credentials.", validated, len(top))
	}

	return types.FinalReport{
		TriggerSummary:     in.Trigger.Summary(),
		ExecutiveSummary:   summary,
		TopOpportunities:   top,
		Signals:            headOf(in.Research.Signals, maxListItems),
		RecommendedActions: headOf(in.Research.RecommendedActions, maxListItems),
		ConfidenceNote:     note,
	}, nil
}

func headOf(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
