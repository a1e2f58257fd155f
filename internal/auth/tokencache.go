// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package auth acquires and caches bearer tokens for the chat gateway using
// the OAuth2 client-credentials grant.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pdiddy/bd-research/pkg/types"
)

// RefreshBuffer is how long before expiry a cached token stops being served.
const RefreshBuffer = 5 * time.Minute

const (
	defaultExpiresIn    = 3600 * time.Second
	defaultTokenTimeout = 30 * time.Second
	maxErrorBodyBytes   = 8 * 1024
)

// Token is a bearer token and the absolute instant it expires.
type Token struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// Valid reports whether the token may still be handed out at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(RefreshBuffer).Before(t.Expiry)
}

// Error reports a failed token acquisition or an authorization failure.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("authentication failed: HTTP %d: %s", e.StatusCode, e.Body)
	default:
		return "authentication failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// TokenCache caches one token. Readers share a read lock while the cached
// token is valid; refreshes are serialized so concurrent callers that find
// the token expired trigger exactly one fetch and all receive its result.
type TokenCache struct {
	cfg    types.AuthConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	token Token

	refreshMu sync.Mutex
}

// NewTokenCache returns an empty cache. A nil client uses http.DefaultClient
// and a nil logger discards output.
func NewTokenCache(cfg types.AuthConfig, client *http.Client, logger *zap.Logger) *TokenCache {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTokenTimeout
	}
	return &TokenCache{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Token returns the cached token, acquiring a new one when the cached token
// is missing or within RefreshBuffer of expiry.
func (c *TokenCache) Token(ctx context.Context) (Token, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return Token{}, err
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	c.logger.Debug("token refreshed", zap.Time("expiry", tok.Expiry))
	return tok, nil
}

// Invalidate drops the cached token if it is still stale. An empty stale
// value drops whatever is cached. Passing the rejected access token keeps a
// token that a concurrent caller already refreshed.
func (c *TokenCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stale == "" || c.token.AccessToken == stale {
		c.token = Token{}
	}
}

func (c *TokenCache) cached() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token.Valid(c.now()) {
		return c.token, true
	}
	return Token{}, false
}

// fetch performs the client-credentials exchange.
func (c *TokenCache) fetch(ctx context.Context) (Token, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return Token{}, &Error{Err: fmt.Errorf("client id and client secret are required")}
	}
	if c.cfg.TenantID == "" && strings.Contains(c.rawTokenURL(), "{tenant}") {
		return Token{}, &Error{Err: fmt.Errorf("tenant id is required")}
	}

	conf := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.tokenURL(),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if c.cfg.Scope != "" {
		conf.Scopes = []string{c.cfg.Scope}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	requested := c.now()
	tok, err := conf.Token(context.WithValue(ctx, oauth2.HTTPClient, c.client))
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			body := rErr.Body
			if len(body) > maxErrorBodyBytes {
				body = body[:maxErrorBodyBytes]
			}
			return Token{}, &Error{StatusCode: rErr.Response.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return Token{}, &Error{Err: fmt.Errorf("token request: %w", err)}
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = requested.Add(defaultExpiresIn)
	}
	return Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      expiry,
	}, nil
}

func (c *TokenCache) rawTokenURL() string {
	if c.cfg.TokenURL != "" {
		return c.cfg.TokenURL
	}
	return types.DefaultConfig().Auth.TokenURL
}

func (c *TokenCache) tokenURL() string {
	return strings.ReplaceAll(c.rawTokenURL(), "{tenant}", url.PathEscape(c.cfg.TenantID))
}
