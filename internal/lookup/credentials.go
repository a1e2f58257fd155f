// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/internal/clientcache"
	"github.com/pdiddy/bd-research/internal/extract"
	"github.com/pdiddy/bd-research/pkg/types"
)

// Asker sends a prompt to an assistant endpoint and returns its text answer.
// *gateway.Client implements it.
type Asker interface {
	Ask(ctx context.Context, prompt, endpointRef string) (string, error)
}

var credentialsTemplate = template.Must(template.New("credentials").Parse(`# Role
You are a credentials agent that finds internal project credentials relevant to a business opportunity.

# Opportunity
- Title: {{.Title}}
- Scope: {{.Scope}}
- Sector/Industry: {{.Sector}}
- Key Requirements: {{.Requirements}}

# Instructions
1. Find up to 3 credentials most relevant to this opportunity.
2. Rank by industry match, then technology match, then challenge similarity.
3. Never reveal client names and never invent credentials.

# Output Format
Respond with only a JSON object of this form:
{"matches": [{"title": "", "client_challenge": "", "approach": "", "value_provided": "", "industry": "", "technologies_used": [], "url": ""}], "no_matches_found": false}
When nothing is relevant respond with {"matches": [], "no_matches_found": true}.
`))

// requirementKeywords map scope terms to the requirement named in the query.
var requirementKeywords = []struct{ term, label string }{
	{"cybersecurity", "Cybersecurity"},
	{"cloud", "Cloud"},
	{"compliance", "Compliance"},
	{"risk", "Risk Management"},
}

// Requirements derives the key requirements of an opportunity from its
// compliance level and scope.
func Requirements(opp types.Opportunity) []string {
	var reqs []string
	if lvl := strings.TrimSpace(opp.ComplianceLevel); lvl != "" {
		if !strings.HasPrefix(strings.ToUpper(lvl), "CMMC") {
			lvl = "CMMC " + lvl
		}
		reqs = append(reqs, lvl)
	}
	scope := strings.ToLower(opp.Scope)
	for _, k := range requirementKeywords {
		if strings.Contains(scope, k.term) {
			reqs = append(reqs, k.label)
		}
	}
	return reqs
}

// CredentialsQuery renders the credentials lookup prompt for opp.
func CredentialsQuery(opp types.Opportunity, sector string) (string, error) {
	reqs := "N/A"
	if r := Requirements(opp); len(r) > 0 {
		reqs = strings.Join(r, ", ")
	}
	scope := opp.Scope
	if scope == "" {
		scope = "N/A"
	}
	var buf bytes.Buffer
	err := credentialsTemplate.Execute(&buf, struct {
		Title, Scope, Sector, Requirements string
	}{opp.Title, scope, sector, reqs})
	if err != nil {
		return "", fmt.Errorf("rendering credentials query: %w", err)
	}
	return buf.String(), nil
}

// CredentialsAgent looks up internal credentials for an opportunity through
// one credentials assistant endpoint.
type CredentialsAgent struct {
	asker    Asker
	endpoint string
	logger   *zap.Logger
}

// NewCredentialsAgent returns an agent asking the assistant at endpoint.
func NewCredentialsAgent(asker Asker, endpoint string, logger *zap.Logger) *CredentialsAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialsAgent{asker: asker, endpoint: endpoint, logger: logger}
}

// Endpoint returns the assistant reference the agent asks.
func (a *CredentialsAgent) Endpoint() string { return a.endpoint }

// Lookup asks for credentials supporting opp. An unparseable answer is an
// error; the coordinator decides how to degrade it.
func (a *CredentialsAgent) Lookup(ctx context.Context, opp types.Opportunity, sector string) (types.LookupResult, error) {
	prompt, err := CredentialsQuery(opp, sector)
	if err != nil {
		return types.LookupResult{}, err
	}
	a.logger.Debug("credentials lookup", zap.String("title", opp.Title), zap.String("endpoint", a.endpoint))

	raw, err := a.asker.Ask(ctx, prompt, a.endpoint)
	if err != nil {
		return types.LookupResult{}, fmt.Errorf("credentials lookup for %q: %w", opp.Title, err)
	}
	return extract.ParseMatches(raw, opp.Title)
}

// Agents routes each lookup to the credentials agent for the sector's
// industry. Agents are built once per industry and shared across runs.
type Agents struct {
	cache *clientcache.Cache[*CredentialsAgent]
}

// NewAgents returns a router over cfg's endpoints. An industry without a
// dedicated endpoint uses cfg.Endpoint.
func NewAgents(asker Asker, cfg types.LookupConfig, logger *zap.Logger) *Agents {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for k, v := range cfg.Endpoints {
		endpoints[Industry(k)] = v
	}
	return &Agents{cache: clientcache.New(func(industry string) (*CredentialsAgent, error) {
		endpoint := endpoints[industry]
		if endpoint == "" {
			endpoint = cfg.Endpoint
		}
		if endpoint == "" {
			return nil, fmt.Errorf("no credentials endpoint configured for industry %q", industry)
		}
		logger.Info("creating credentials agent", zap.String("industry", industry), zap.String("endpoint", endpoint))
		return NewCredentialsAgent(asker, endpoint, logger.With(zap.String("industry", industry))), nil
	})}
}

// Agent returns the shared agent for sector.
func (a *Agents) Agent(sector string) (*CredentialsAgent, error) {
	return a.cache.Get(Industry(sector))
}

// Lookup implements Lookuper.
func (a *Agents) Lookup(ctx context.Context, opp types.Opportunity, sector string) (types.LookupResult, error) {
	agent, err := a.Agent(sector)
	if err != nil {
		return types.LookupResult{}, err
	}
	return agent.Lookup(ctx, opp, sector)
}

// Industry normalizes a sector name into a cache key.
func Industry(sector string) string {
	return strings.ToLower(strings.TrimSpace(sector))
}
