// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/bd-research/internal/secrets"
	"github.com/pdiddy/bd-research/pkg/types"
)

// loadConfig overlays the config file and BD_RESEARCH_* environment on the
// defaults, then fills missing credentials from the secrets directory.
func loadConfig(v *viper.Viper, s map[string]string) types.Config {
	cfg := types.DefaultConfig()

	setBool(v, "enabled", &cfg.Enabled)

	setString(v, "auth.tenant_id", &cfg.Auth.TenantID)
	setString(v, "auth.client_id", &cfg.Auth.ClientID)
	setString(v, "auth.client_secret", &cfg.Auth.ClientSecret)
	setString(v, "auth.scope", &cfg.Auth.Scope)
	setString(v, "auth.token_url", &cfg.Auth.TokenURL)
	setDuration(v, "auth.timeout", &cfg.Auth.Timeout)

	setString(v, "gateway.url", &cfg.Gateway.URL)
	setDuration(v, "gateway.timeout", &cfg.Gateway.Timeout)
	setString(v, "gateway.user_agent", &cfg.Gateway.UserAgent)

	setString(v, "jobs.base_url", &cfg.Jobs.BaseURL)
	setDuration(v, "jobs.timeout", &cfg.Jobs.Timeout)
	setString(v, "jobs.user_agent", &cfg.Jobs.UserAgent)
	setDuration(v, "jobs.poll_interval", &cfg.Jobs.PollInterval)
	setDuration(v, "jobs.budget", &cfg.Jobs.Budget)
	setInt(v, "jobs.max_retries", &cfg.Jobs.MaxRetries)

	setString(v, "lookup.endpoint", &cfg.Lookup.Endpoint)
	if v.IsSet("lookup.endpoints") {
		cfg.Lookup.Endpoints = v.GetStringMapString("lookup.endpoints")
	}
	setInt(v, "lookup.max_batch", &cfg.Lookup.MaxBatch)

	setString(v, "synthesis.endpoint", &cfg.Synthesis.Endpoint)
	setInt(v, "synthesis.report_size", &cfg.Synthesis.ReportSize)

	setBool(v, "history.enabled", &cfg.History.Enabled)
	setString(v, "history.dir", &cfg.History.Dir)

	secrets.Apply(s, &cfg.Auth)
	return cfg
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}
