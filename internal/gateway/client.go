// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gateway is the HTTP client for the stateless chat gateway. Each
// call posts one prompt for one assistant endpoint and normalizes the
// gateway's response shapes into a single text result.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/internal/auth"
	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	// MinPromptLength is the shortest accepted prompt after trimming.
	MinPromptLength = 3

	defaultTimeout    = 120 * time.Second
	maxErrorBodyBytes = 8 * 1024
	maxBodyBytes      = 16 << 20
)

// TokenSource supplies bearer tokens. Invalidate drops a token the gateway rejected.
type TokenSource interface {
	Token(ctx context.Context) (auth.Token, error)
	Invalidate(stale string)
}

// Client posts prompts to the chat gateway. It holds no per-request state and
// is safe for concurrent use.
type Client struct {
	url        string
	userAgent  string
	timeout    time.Duration
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a gateway client. A nil httpClient uses http.DefaultClient
// and a nil logger discards output.
func NewClient(cfg types.GatewayConfig, tokens TokenSource, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
		timeout:    timeout,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}
}

type askRequest struct {
	Input       string `json:"input"`
	GPTEndpoint string `json:"gptEndpoint"`
}

// Ask sends prompt to the assistant identified by endpointRef and returns its
// text answer. A 401 or 403 drops the cached token and retries exactly once.
func (c *Client) Ask(ctx context.Context, prompt, endpointRef string) (string, error) {
	input, err := validate(prompt, endpointRef)
	if err != nil {
		return "", err
	}
	if c.url == "" {
		return "", &ValidationError{Field: "gateway url", Message: "not configured"}
	}
	if c.tokens == nil {
		return "", &ValidationError{Field: "token source", Message: "not configured"}
	}

	payload, err := json.Marshal(askRequest{Input: input, GPTEndpoint: endpointRef})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return "", err
		}

		status, body, err := c.post(ctx, tok.AccessToken, payload)
		if err != nil {
			return "", err
		}

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			if attempt == 0 {
				c.logger.Warn("gateway rejected token, refreshing", zap.Int("status", status))
				c.tokens.Invalidate(tok.AccessToken)
				continue
			}
			return "", &auth.Error{StatusCode: status, Body: truncate(body, maxErrorBodyBytes)}
		}

		if status < 200 || status > 299 {
			return "", &APIError{StatusCode: status, Body: truncate(body, maxErrorBodyBytes)}
		}

		kind, text, ok := DecodeResponse(body)
		if !ok {
			return "", &APIError{StatusCode: status, Body: truncate(body, maxErrorBodyBytes), Reason: "unrecognized response shape"}
		}
		c.logger.Debug("gateway response", zap.Stringer("shape", kind), zap.Int("chars", len(text)))
		return text, nil
	}
}

// post sends one request and returns the status and body.
func (c *Client) post(ctx context.Context, token string, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, &TimeoutError{Timeout: c.timeout, Err: err}
		}
		return 0, nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return 0, nil, &TimeoutError{Timeout: c.timeout, Err: err}
		}
		return 0, nil, fmt.Errorf("reading gateway response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// validate checks the prompt and endpoint reference and returns the trimmed prompt.
func validate(prompt, endpointRef string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", &ValidationError{Field: "prompt", Message: "question cannot be empty"}
	}
	if len([]rune(trimmed)) < MinPromptLength {
		return "", &ValidationError{Field: "prompt", Message: fmt.Sprintf("input must be at least %d characters", MinPromptLength)}
	}
	if strings.TrimSpace(endpointRef) == "" {
		return "", &ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	u, err := url.Parse(endpointRef)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &ValidationError{Field: "endpoint", Message: fmt.Sprintf("%q is not an absolute http(s) URL", endpointRef)}
	}
	return trimmed, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
