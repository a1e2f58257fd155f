// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/bd-research/internal/auth"
	"github.com/pdiddy/bd-research/pkg/types"
)

const testEndpoint = "https://assistant.example.com/api/asst_123"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTokens hands out "tok-N" and records invalidations.
type fakeTokens struct {
	mu          sync.Mutex
	issued      int
	current     string
	invalidated []string
	err         error
}

func (f *fakeTokens) Token(context.Context) (auth.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return auth.Token{}, f.err
	}
	if f.current == "" {
		f.issued++
		f.current = fmt.Sprintf("tok-%d", f.issued)
	}
	return auth.Token{AccessToken: f.current, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) Invalidate(stale string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, stale)
	if f.current == stale {
		f.current = ""
	}
}

// sequenceServer answers each call with the next status/body pair, repeating the last.
func sequenceServer(t *testing.T, steps ...func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n > len(steps) {
			n = len(steps)
		}
		steps[n-1](w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func respond(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func newTestClient(ts *httptest.Server, tokens TokenSource) *Client {
	return NewClient(types.GatewayConfig{URL: ts.URL}, tokens, ts.Client(), nil)
}

func TestAsk_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		endpoint string
		field    string
	}{
		{"empty prompt", "", testEndpoint, "prompt"},
		{"whitespace prompt", "   \n\t", testEndpoint, "prompt"},
		{"one char", "a", testEndpoint, "prompt"},
		{"two chars after trim", "  ab  ", testEndpoint, "prompt"},
		{"empty endpoint", "valid question", "", "endpoint"},
		{"relative endpoint", "valid question", "/api/asst", "endpoint"},
		{"bad scheme", "valid question", "ftp://example.com/x", "endpoint"},
		{"not a url", "valid question", "::not a url", "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, calls := sequenceServer(t, respond(http.StatusOK, `{"message":"x"}`))
			tokens := &fakeTokens{}
			c := newTestClient(ts, tokens)

			_, err := c.Ask(context.Background(), tt.prompt, tt.endpoint)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, int32(0), atomic.LoadInt32(calls))
			assert.Equal(t, 0, tokens.issued, "no token should be requested")
		})
	}
}

func TestAsk_ValidPromptsPassValidation(t *testing.T) {
	for _, prompt := range []string{"abc", "  abc  ", "What changed at Acme Corp?", "日本語"} {
		ts, calls := sequenceServer(t, respond(http.StatusOK, `{"message":"ok"}`))
		c := newTestClient(ts, &fakeTokens{})

		got, err := c.Ask(context.Background(), prompt, testEndpoint)
		require.NoError(t, err, prompt)
		assert.Equal(t, "ok", got)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	}
}

func TestAsk_SendsPayloadAndHeaders(t *testing.T) {
	var gotAuth, gotType string
	var gotBody askRequest
	ts, _ := sequenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"message":"hello"}`)
	})
	c := newTestClient(ts, &fakeTokens{})

	got, err := c.Ask(context.Background(), "  find credentials  ", testEndpoint)
	require.NoError(t, err)

	assert.Equal(t, "hello", got)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "find credentials", gotBody.Input)
	assert.Equal(t, testEndpoint, gotBody.GPTEndpoint)
}

func TestAsk_RetriesOnceOnAuthFailure(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprintf("%d then 200", status), func(t *testing.T) {
			var seen []string
			ts, calls := sequenceServer(t,
				func(w http.ResponseWriter, r *http.Request) {
					seen = append(seen, r.Header.Get("Authorization"))
					w.WriteHeader(status)
				},
				func(w http.ResponseWriter, r *http.Request) {
					seen = append(seen, r.Header.Get("Authorization"))
					fmt.Fprint(w, `{"message":"after retry"}`)
				},
			)
			tokens := &fakeTokens{}
			c := newTestClient(ts, tokens)

			got, err := c.Ask(context.Background(), "question", testEndpoint)
			require.NoError(t, err)
			assert.Equal(t, "after retry", got)
			assert.Equal(t, int32(2), atomic.LoadInt32(calls))
			assert.Equal(t, []string{"tok-1"}, tokens.invalidated)
			assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, seen)
		})

		t.Run(fmt.Sprintf("%d twice", status), func(t *testing.T) {
			ts, calls := sequenceServer(t, respond(status, `denied`))
			tokens := &fakeTokens{}
			c := newTestClient(ts, tokens)

			_, err := c.Ask(context.Background(), "question", testEndpoint)

			var authErr *auth.Error
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, status, authErr.StatusCode)
			assert.Equal(t, int32(2), atomic.LoadInt32(calls))
			assert.Len(t, tokens.invalidated, 1)
		})
	}
}

func TestAsk_TokenFailureSurfaces(t *testing.T) {
	ts, calls := sequenceServer(t, respond(http.StatusOK, `{"message":"x"}`))
	c := newTestClient(ts, &fakeTokens{err: &auth.Error{StatusCode: 400, Body: "bad"}})

	_, err := c.Ask(context.Background(), "question", testEndpoint)

	var authErr *auth.Error
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestAsk_Timeout(t *testing.T) {
	ts, calls := sequenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := NewClient(types.GatewayConfig{URL: ts.URL, HTTPConfig: types.HTTPConfig{Timeout: 50 * time.Millisecond}}, &fakeTokens{}, ts.Client(), nil)

	_, err := c.Ask(context.Background(), "question", testEndpoint)

	var tErr *TimeoutError
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, err.Error(), "service may be unavailable")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "timeouts are not retried")
}

func TestAsk_ServerErrorIsAPIError(t *testing.T) {
	ts, _ := sequenceServer(t, respond(http.StatusBadGateway, `upstream down`))
	c := newTestClient(ts, &fakeTokens{})

	_, err := c.Ask(context.Background(), "question", testEndpoint)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Body)
}

func TestAsk_UnknownShapeKeepsBody(t *testing.T) {
	body := `{"status":"ok","data":{"text":"hidden"}}`
	ts, _ := sequenceServer(t, respond(http.StatusOK, body))
	c := newTestClient(ts, &fakeTokens{})

	_, err := c.Ask(context.Background(), "question", testEndpoint)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, body, apiErr.Body)
	assert.Equal(t, "unrecognized response shape", apiErr.Reason)
}

func TestAsk_EquivalentShapesYieldSameText(t *testing.T) {
	const want = "Three credentials matched."
	bodies := map[string]string{
		"message":   `{"message":"Three credentials matched."}`,
		"variables": `{"variables":[{"key":"threadId","value":"t-1"},{"key":"message","value":"Three credentials matched."}]}`,
		"records":   `[{"Timestamp":"2026-01-01T10:00:00Z","Content":"Three credentials matched."}]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			ts, _ := sequenceServer(t, respond(http.StatusOK, body))
			c := newTestClient(ts, &fakeTokens{})

			got, err := c.Ask(context.Background(), "question", testEndpoint)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestAsk_ContextCancelled(t *testing.T) {
	ts, _ := sequenceServer(t, respond(http.StatusOK, `{"message":"x"}`))
	c := newTestClient(ts, &fakeTokens{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Ask(ctx, "question", testEndpoint)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
