// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/internal/extract"
	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	promptOpportunities = 5
	promptScopeRunes    = 200
	promptCredentials   = 3
)

// Asker sends a prompt to an assistant endpoint and returns its text answer.
type Asker interface {
	Ask(ctx context.Context, prompt, endpointRef string) (string, error)
}

var analystTemplate = template.Must(template.New("analyst").Parse(`# Role
You are a business development analyst writing a short report for a partner.

# Request
{{.TriggerSummary}}

# Research Summary
{{.ResearchSummary}}

# Opportunities
{{.Opportunities}}

# Internal Credentials (keyed by opportunity title)
{{.Credentials}}

# Instructions
Select at most {{.Size}} opportunities, keeping their original order, and write a concise executive summary.
Set validation_status to "Validated" for two or more credentials, "Partial" for one, and "No Internal Data" otherwise.
List at most 5 signals and at most 5 recommended actions.

# Output Format
Respond with only a JSON object:
{"trigger_summary": "", "executive_summary": "", "top_opportunities": [{"title": "", "validation_status": "", "credentials": [{"title": "", "url": ""}]}], "signals_detected": [], "recommended_actions": [], "confidence_note": ""}
`))

type promptOpportunity struct {
	Title          string `json:"title"`
	Agency         string `json:"agency,omitempty"`
	Scope          string `json:"scope,omitempty"`
	EstimatedValue string `json:"estimated_value,omitempty"`
	Timeline       string `json:"timeline,omitempty"`
	CMMCLevel      string `json:"cmmc_level,omitempty"`
	Confidence     string `json:"confidence"`
}

type promptCredential struct {
	Title         string `json:"title"`
	ValueProvided string `json:"value_provided,omitempty"`
	URL           string `json:"url,omitempty"`
}

type promptLookup struct {
	Matches []promptCredential `json:"matches"`
	NoMatch bool               `json:"no_matches_found"`
}

// analystReply is the JSON the analyst is asked to answer with.
type analystReply struct {
	TriggerSummary   string `json:"trigger_summary"`
	ExecutiveSummary string `json:"executive_summary"`
	TopOpportunities []struct {
		Title string `json:"title"`
	} `json:"top_opportunities"`
	Signals        []string `json:"signals_detected"`
	Actions        []string `json:"recommended_actions"`
	ConfidenceNote string   `json:"confidence_note"`
}

// Analyst asks an assistant to synthesize the report narrative. Lookup
// results and opportunity details always come from the run's own data; the
// assistant chooses and summarizes.
type Analyst struct {
	asker    Asker
	endpoint string
	logger   *zap.Logger
}

// NewAnalyst returns an analyst asking the assistant at endpoint.
func NewAnalyst(asker Asker, endpoint string, logger *zap.Logger) *Analyst {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyst{asker: asker, endpoint: endpoint, logger: logger}
}

// Synthesize implements Synthesizer. Any failure to ask or to decode the
// reply is returned; callers fall back to Rules.
func (a *Analyst) Synthesize(ctx context.Context, in Input) (types.FinalReport, error) {
	prompt, err := analystPrompt(in)
	if err != nil {
		return types.FinalReport{}, err
	}
	raw, err := a.asker.Ask(ctx, prompt, a.endpoint)
	if err != nil {
		return types.FinalReport{}, fmt.Errorf("asking analyst: %w", err)
	}
	report, err := parseReply(raw, in)
	if err != nil {
		return types.FinalReport{}, err
	}
	a.logger.Debug("analyst synthesis complete", zap.Int("opportunities", len(report.TopOpportunities)))
	return report, nil
}

func analystPrompt(in Input) (string, error) {
	opps := headOfOpps(in.Research.Opportunities, promptOpportunities)
	po := make([]promptOpportunity, 0, len(opps))
	for _, o := range opps {
		po = append(po, promptOpportunity{
			Title:          o.Title,
			Agency:         o.Agency,
			Scope:          truncate(o.Scope, promptScopeRunes),
			EstimatedValue: o.EstimatedValue,
			Timeline:       o.Timeline,
			CMMCLevel:      o.ComplianceLevel,
			Confidence:     string(o.Confidence),
		})
	}
	pl := make(map[string]promptLookup, len(in.Lookups))
	for title, r := range in.Lookups {
		l := promptLookup{Matches: []promptCredential{}, NoMatch: r.NoMatch}
		for i, m := range r.Matches {
			if i == promptCredentials {
				break
			}
			l.Matches = append(l.Matches, promptCredential{Title: m.Title, ValueProvided: m.ValueProvided, URL: m.URL})
		}
		pl[title] = l
	}

	oppsJSON, err := json.MarshalIndent(po, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding opportunities: %w", err)
	}
	credsJSON, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}
	summary := in.Research.ExecutiveSummary
	if summary == "" {
		summary = "No executive summary available"
	}

	var buf bytes.Buffer
	err = analystTemplate.Execute(&buf, map[string]any{
		"TriggerSummary":  in.Trigger.Summary(),
		"ResearchSummary": summary,
		"Opportunities":   string(oppsJSON),
		"Credentials":     string(credsJSON),
		"Size":            in.size(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering analyst prompt: %w", err)
	}
	return buf.String(), nil
}

// parseReply decodes the analyst's JSON and rebuilds the report around the
// run's own opportunities and lookups, in research rank order. Selections
// that name no extracted opportunity are dropped; a reply that selects none
// of them is an error.
func parseReply(raw string, in Input) (types.FinalReport, error) {
	body := strings.TrimSpace(raw)
	if fenced, ok := extract.StripFence(body); ok {
		body = fenced
	}
	if span, ok := extract.ObjectSpan(body); ok {
		body = span
	}
	var reply analystReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return types.FinalReport{}, &extract.ParseError{Kind: "analyst reply", Reason: "invalid JSON", Err: err}
	}

	type ranked struct {
		rank int
		ro   types.ReportOpportunity
	}
	var picked []ranked
	used := make(map[string]bool)
	for _, sel := range reply.TopOpportunities {
		if len(picked) == in.size() {
			break
		}
		rank, opp, ok := findOpportunity(sel.Title, in.Research.Opportunities)
		if !ok || used[opp.Title] {
			continue
		}
		used[opp.Title] = true

		lk := in.lookupFor(opp.Title)
		picked = append(picked, ranked{rank: rank, ro: types.ReportOpportunity{
			Opportunity: opp,
			Lookup:      lk,
			Validation:  types.StatusFor(lk),
		}})
	}
	if len(picked) == 0 && len(in.Research.Opportunities) > 0 {
		return types.FinalReport{}, &extract.ParseError{Kind: "analyst reply", Reason: "no selected opportunity matches the research"}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].rank < picked[j].rank })

	top := make([]types.ReportOpportunity, len(picked))
	for i, p := range picked {
		top[i] = p.ro
	}

	summary := reply.TriggerSummary
	if summary == "" {
		summary = in.Trigger.Summary()
	}
	return types.FinalReport{
		TriggerSummary:     summary,
		ExecutiveSummary:   reply.ExecutiveSummary,
		TopOpportunities:   top,
		Signals:            headOf(reply.Signals, maxListItems),
		RecommendedActions: headOf(reply.Actions, maxListItems),
		ConfidenceNote:     reply.ConfidenceNote,
	}, nil
}

// findOpportunity matches title against the research opportunities,
// case-insensitively, accepting either title containing the other.
func findOpportunity(title string, opps []types.Opportunity) (int, types.Opportunity, bool) {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return 0, types.Opportunity{}, false
	}
	for i, o := range opps {
		ot := strings.ToLower(o.Title)
		if strings.Contains(t, ot) || strings.Contains(ot, t) {
			return i, o, true
		}
	}
	return 0, types.Opportunity{}, false
}

func headOfOpps(opps []types.Opportunity, n int) []types.Opportunity {
	if len(opps) > n {
		return opps[:n]
	}
	return opps
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
