package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "bd-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AuthConfig holds the OAuth2 client-credentials settings for the chat gateway.
type AuthConfig struct {
	// TenantID selects the identity tenant in the token URL.
	TenantID string `json:"tenant_id" yaml:"tenant_id"`

	// ClientID and ClientSecret identify this application.
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`

	// Scope is the requested token scope (e.g. "api://.../.default").
	Scope string `json:"scope" yaml:"scope"`

	// TokenURL overrides the token endpoint. "{tenant}" is replaced by TenantID.
	TokenURL string `json:"token_url,omitempty" yaml:"token_url,omitempty"`

	// Timeout bounds the token request (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// GatewayConfig holds settings for the stateless chat gateway.
type GatewayConfig struct {
	HTTPConfig `yaml:",inline"`

	// URL is the gateway endpoint that accepts {input, gptEndpoint} posts.
	URL string `json:"url" yaml:"url"`
}

// JobConfig holds settings for the long-running research job service.
type JobConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the research job service root; jobs live under BaseURL/jobs.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// PollInterval is the delay between status polls (default 1.5s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Budget is the wall-clock limit for one job (default 10m).
	Budget time.Duration `json:"budget" yaml:"budget"`

	// MaxRetries is the number of 429 retries per request (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// LookupConfig holds settings for the per-opportunity credentials lookup.
type LookupConfig struct {
	// Endpoint is the default credentials assistant reference sent as gptEndpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Endpoints maps an industry (lowercase sector) to a dedicated assistant
	// reference. Sectors without an entry use Endpoint.
	Endpoints map[string]string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`

	// MaxBatch bounds how many opportunities are looked up per run (default 5).
	MaxBatch int `json:"max_batch" yaml:"max_batch"`
}

// SynthesisConfig holds settings for the final report synthesis.
type SynthesisConfig struct {
	// Endpoint is the analyst assistant reference. Empty selects rule-based synthesis.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// ReportSize bounds the number of opportunities in the report (default 3).
	ReportSize int `json:"report_size" yaml:"report_size"`
}

// HistoryConfig holds settings for the optional run history store.
type HistoryConfig struct {
	// Enabled turns run recording on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the directory holding history.db and exports.
	Dir string `json:"dir" yaml:"dir"`
}

// Config groups all settings for one process.
type Config struct {
	// Enabled is the feature flag for the BD research workflow.
	Enabled bool `json:"enabled" yaml:"enabled"`

	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Jobs      JobConfig       `json:"jobs" yaml:"jobs"`
	Lookup    LookupConfig    `json:"lookup" yaml:"lookup"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	History   HistoryConfig   `json:"history" yaml:"history"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Auth: AuthConfig{
			TokenURL: "https://login.microsoftonline.com/{tenant}/oauth2/v2.0/token",
			Timeout:  30 * time.Second,
		},
		Gateway: GatewayConfig{
			HTTPConfig: HTTPConfig{Timeout: 120 * time.Second, UserAgent: "bd-research/0.1"},
		},
		Jobs: JobConfig{
			HTTPConfig:   HTTPConfig{Timeout: 30 * time.Second, UserAgent: "bd-research/0.1"},
			PollInterval: 1500 * time.Millisecond,
			Budget:       10 * time.Minute,
			MaxRetries:   5,
		},
		Lookup:    LookupConfig{MaxBatch: 5},
		Synthesis: SynthesisConfig{ReportSize: 3},
		History:   HistoryConfig{Dir: "history"},
	}
}
