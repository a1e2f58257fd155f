// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/bd-research/pkg/types"
)

func validConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.Auth.TenantID = "contoso"
	cfg.Auth.ClientID = "app-123"
	cfg.Auth.ClientSecret = "s3cret"
	cfg.Auth.Scope = "api://bd/.default"
	cfg.Gateway.URL = "https://gateway.example.com/chat"
	cfg.Jobs.BaseURL = "https://research.example.com"
	cfg.Lookup.Endpoint = "https://gpt.example.com/ishare"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*types.Config)
		wantField string
	}{
		{"valid", func(*types.Config) {}, ""},
		{"disabled", func(c *types.Config) { c.Enabled = false }, "enabled"},
		{"missing client id", func(c *types.Config) { c.Auth.ClientID = " " }, "auth.client_id"},
		{"missing secret", func(c *types.Config) { c.Auth.ClientSecret = "" }, "auth.client_secret"},
		{"missing tenant", func(c *types.Config) { c.Auth.TenantID = "" }, "auth.tenant_id"},
		{"tenant not needed for fixed token URL", func(c *types.Config) {
			c.Auth.TenantID = ""
			c.Auth.TokenURL = "https://login.example.com/token"
		}, ""},
		{"missing gateway", func(c *types.Config) { c.Gateway.URL = "" }, "gateway.url"},
		{"relative jobs URL", func(c *types.Config) { c.Jobs.BaseURL = "/jobs" }, "jobs.base_url"},
		{"missing lookup endpoint", func(c *types.Config) { c.Lookup.Endpoint = "" }, "lookup.endpoint"},
		{"industry endpoints only", func(c *types.Config) {
			c.Lookup.Endpoint = ""
			c.Lookup.Endpoints = map[string]string{"defense": "https://gpt.example.com/ishare-defense"}
		}, ""},
		{"bad industry endpoint", func(c *types.Config) {
			c.Lookup.Endpoints = map[string]string{"energy": "ishare-energy"}
		}, "lookup.endpoints.energy"},
		{"bad synthesis endpoint", func(c *types.Config) { c.Synthesis.Endpoint = "ftp://analyst" }, "synthesis.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cErr *ConfigError
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, tt.wantField, cErr.Field)
		})
	}
}

func TestFromConfig(t *testing.T) {
	o, err := FromConfig(validConfig(), nil, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, o.jobs)
	assert.Nil(t, o.recorder)
	assert.Equal(t, 5, o.maxBatch)
	assert.Equal(t, 3, o.reportSize)

	cfg := validConfig()
	cfg.Synthesis.Endpoint = "https://gpt.example.com/analyst"
	cfg.Lookup.MaxBatch = 2
	rec := &fakeRecorder{}
	o, err = FromConfig(cfg, NewShared(cfg, nil, nil), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, o.maxBatch)
	assert.Same(t, rec, o.recorder)

	cfg.Gateway.URL = ""
	_, err = FromConfig(cfg, nil, nil, nil)
	var cErr *ConfigError
	assert.ErrorAs(t, err, &cErr)
}

// pipelineServers starts a token endpoint and a gateway that answers every
// lookup with an explicit no-match, and returns a config pointing at them.
func pipelineServers(t *testing.T) (types.Config, *int32, *int32) {
	t.Helper()
	var fetches, asks int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600,"token_type":"Bearer"}`, n)
	}))
	t.Cleanup(tokenSrv.Close)
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&asks, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"message":"{\"matches\":[],\"no_matches_found\":true}"}`)
	}))
	t.Cleanup(gatewaySrv.Close)

	cfg := validConfig()
	cfg.Auth.TokenURL = tokenSrv.URL
	cfg.Gateway.URL = gatewaySrv.URL
	return cfg, &fetches, &asks
}

func TestFromConfig_SharedClientsSurviveAcrossOrchestrators(t *testing.T) {
	cfg, fetches, asks := pipelineServers(t)
	shared := NewShared(cfg, nil, nil)

	for i := 0; i < 2; i++ {
		o, err := FromConfig(cfg, shared, nil, nil)
		require.NoError(t, err)
		report, err := o.RunWithText(context.Background(), types.ResearchTrigger{Sector: "defense"}, twoOpportunities, nil)
		require.NoError(t, err)
		assert.False(t, report.Degraded)
		assert.Len(t, report.TopOpportunities, 2)
	}

	assert.Equal(t, int32(4), atomic.LoadInt32(asks))
	assert.Equal(t, int32(1), atomic.LoadInt32(fetches), "one token serves both orchestrators")
}

func TestFromConfig_NilSharedBuildsOwnClients(t *testing.T) {
	cfg, fetches, _ := pipelineServers(t)

	for i := 0; i < 2; i++ {
		o, err := FromConfig(cfg, nil, nil, nil)
		require.NoError(t, err)
		_, err = o.RunWithText(context.Background(), types.ResearchTrigger{Sector: "defense"}, twoOpportunities, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(fetches))
}
