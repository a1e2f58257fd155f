// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/internal/auth"
	"github.com/pdiddy/bd-research/internal/extract"
	"github.com/pdiddy/bd-research/internal/gateway"
	"github.com/pdiddy/bd-research/internal/jobs"
	"github.com/pdiddy/bd-research/internal/lookup"
	"github.com/pdiddy/bd-research/internal/synth"
	"github.com/pdiddy/bd-research/pkg/types"
)

type setting struct{ field, value string }

// Validate checks that cfg names every endpoint and credential a run needs.
func Validate(cfg types.Config) error {
	if !cfg.Enabled {
		return &ConfigError{Field: "enabled", Message: "BD research is disabled"}
	}
	required := []setting{
		{"auth.client_id", cfg.Auth.ClientID},
		{"auth.client_secret", cfg.Auth.ClientSecret},
		{"auth.scope", cfg.Auth.Scope},
	}
	if strings.Contains(cfg.Auth.TokenURL, "{tenant}") || cfg.Auth.TokenURL == "" {
		required = append(required, setting{"auth.tenant_id", cfg.Auth.TenantID})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigError{Field: r.field, Message: "not set"}
		}
	}

	urls := []setting{
		{"gateway.url", cfg.Gateway.URL},
		{"jobs.base_url", cfg.Jobs.BaseURL},
	}
	if cfg.Lookup.Endpoint != "" || len(cfg.Lookup.Endpoints) == 0 {
		urls = append(urls, setting{"lookup.endpoint", cfg.Lookup.Endpoint})
	}
	for industry, endpoint := range cfg.Lookup.Endpoints {
		urls = append(urls, setting{"lookup.endpoints." + industry, endpoint})
	}
	if cfg.Synthesis.Endpoint != "" {
		urls = append(urls, setting{"synthesis.endpoint", cfg.Synthesis.Endpoint})
	}
	for _, u := range urls {
		if strings.TrimSpace(u.value) == "" {
			return &ConfigError{Field: u.field, Message: "not set"}
		}
		if !extract.WellFormedURL(u.value) {
			return &ConfigError{Field: u.field, Message: "must be an absolute http(s) URL"}
		}
	}
	return nil
}

// Shared holds the clients that live for the whole process: the token
// cache, the gateway client over it, and the per-industry credentials
// agents. Build it once and hand it to every FromConfig call so tokens and
// agents survive across runs.
type Shared struct {
	HTTPClient *http.Client
	Tokens     *auth.TokenCache
	Gateway    *gateway.Client
	Agents     *lookup.Agents
}

// NewShared builds the process-wide clients for cfg. httpClient may be nil.
func NewShared(cfg types.Config, httpClient *http.Client, logger *zap.Logger) *Shared {
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := auth.NewTokenCache(cfg.Auth, httpClient, logger.Named("auth"))
	gw := gateway.NewClient(cfg.Gateway, tokens, httpClient, logger.Named("gateway"))
	return &Shared{
		HTTPClient: httpClient,
		Tokens:     tokens,
		Gateway:    gw,
		Agents:     lookup.NewAgents(gw, cfg.Lookup, logger.Named("lookup")),
	}
}

// FromConfig validates cfg and wires a production pipeline over shared:
// the job runner and gateway use its token cache, lookups go through its
// agents, and the analyst is used when a synthesis endpoint is configured.
// A nil shared builds fresh clients for this orchestrator alone. recorder
// may be nil.
func FromConfig(cfg types.Config, shared *Shared, recorder Recorder, logger *zap.Logger) (*Orchestrator, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if shared == nil {
		shared = NewShared(cfg, nil, logger)
	}

	var s synth.Synthesizer = synth.Rules{}
	if cfg.Synthesis.Endpoint != "" {
		s = synth.NewAnalyst(shared.Gateway, cfg.Synthesis.Endpoint, logger.Named("synth"))
	}

	return New(Params{
		Jobs:        jobs.NewRunner(cfg.Jobs, shared.Tokens, shared.HTTPClient, logger.Named("jobs")),
		Lookups:     lookup.NewCoordinator(shared.Agents, cfg.Lookup.MaxBatch, logger.Named("lookup")),
		Synthesizer: s,
		Recorder:    recorder,
		ReportSize:  cfg.Synthesis.ReportSize,
		Logger:      logger,
	})
}
