// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/bd-research/pkg/types"
)

// queryTemplate renders the natural-language request sent to the research
// service. The trailing instructions name the sections and field labels the
// research parser reads.
var queryTemplate = template.Must(template.New("query").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`Research {{.Sector}} sector opportunities{{with .Company}} for {{.}}{{end}}
{{- with .Signals}} focusing on {{join . ", "}} signals{{end}}.
{{- with .Filters}} Filter for {{join . ", "}}.{{end}}
{{- with .ServiceLines}} Prioritize {{join . ", "}} service line opportunities.{{end}}
{{- with .OtherContext}} Additional context: {{.}}{{end}}

Structure the answer with the headings Executive Summary, Signals Detected, Opportunity Details, Recommended Actions and Sources.
Under Opportunity Details give each of the top {{.Limit}} opportunities its own heading in the form "Title – Agency" followed by Scope, Value, Timeline, Incumbent and CMMC lines.
List every source as a bullet of the form - [title](url).
`))

type queryData struct {
	Sector       string
	Company      string
	Signals      []string
	Filters      []string
	ServiceLines []string
	OtherContext string
	Limit        int
}

// Query renders the research request for a trigger.
func Query(trigger types.ResearchTrigger) (string, error) {
	data := queryData{
		Sector:       strings.TrimSpace(trigger.Sector),
		Company:      strings.TrimSpace(trigger.Company),
		Signals:      trimAll(trigger.Signals),
		ServiceLines: trimAll(trigger.ServiceLines),
		OtherContext: strings.TrimSpace(trigger.OtherContext),
		Limit:        trigger.Limit(5),
	}
	if g := strings.TrimSpace(trigger.Geography); g != "" {
		data.Filters = append(data.Filters, g+" geography")
	}
	if trigger.MinValueUSD > 0 {
		data.Filters = append(data.Filters, fmt.Sprintf("minimum $%d value", trigger.MinValueUSD))
	}
	data.Filters = append(data.Filters, fmt.Sprintf("activity within the last %d days", trigger.Window()))

	var buf bytes.Buffer
	if err := queryTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering research query: %w", err)
	}
	return buf.String(), nil
}

func trimAll(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
