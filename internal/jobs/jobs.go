// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs runs long-lived research jobs on the external research
// service. A run submits the query derived from a trigger, polls the job at
// a fixed interval until it reaches a terminal status or the wall-clock
// budget elapses, and forwards new partial text to a progress callback.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/internal/auth"
	"github.com/pdiddy/bd-research/internal/extract"
	"github.com/pdiddy/bd-research/internal/httputil"
	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	maxStatusBody = 16 << 20
	maxErrorBody  = 8 << 10
)

// State is a job's position in its lifecycle.
type State int

const (
	StateSubmitted State = iota
	StatePolling
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// TimeoutError reports a job that did not finish within its budget.
type TimeoutError struct {
	JobID  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("research job not submitted within %s", e.Budget)
	}
	return fmt.Sprintf("research job %s did not finish within %s", e.JobID, e.Budget)
}

// FailedError reports a job the service could not accept or run: a
// submission failure, a non-2xx status, or a job-reported failure.
type FailedError struct {
	JobID      string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FailedError) Error() string {
	var b strings.Builder
	b.WriteString("research job")
	if e.JobID != "" {
		b.WriteString(" " + e.JobID)
	}
	b.WriteString(" failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *FailedError) Unwrap() error { return e.Err }

// ProgressFunc receives each new increment of partial job output.
type ProgressFunc func(increment string)

// TokenSource supplies bearer tokens for the research service.
type TokenSource interface {
	Token(ctx context.Context) (auth.Token, error)
}

// Runner submits and polls research jobs. One Runner may serve concurrent runs.
type Runner struct {
	cfg    types.JobConfig
	http   *http.Client
	tokens TokenSource
	logger *zap.Logger

	// onState observes state transitions; used by tests.
	onState func(jobID string, s State)
}

// NewRunner returns a runner for the service at cfg.BaseURL. tokens may be
// nil when the service needs no authentication.
func NewRunner(cfg types.JobConfig, tokens TokenSource, httpClient *http.Client, logger *zap.Logger) *Runner {
	defaults := types.DefaultConfig().Jobs
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Budget <= 0 {
		cfg.Budget = defaults.Budget
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, http: httpClient, tokens: tokens, logger: logger}
}

var errBudget = errors.New("job budget exhausted")

// Run submits a job for trigger and waits for it to complete. progress may
// be nil. It returns *TimeoutError when the budget elapses and *FailedError
// when the job cannot be submitted or reports failure. Cancelling ctx
// returns ctx's error.
func (r *Runner) Run(ctx context.Context, trigger types.ResearchTrigger, progress ProgressFunc) (types.RawResearchArtifact, error) {
	query, err := Query(trigger)
	if err != nil {
		return types.RawResearchArtifact{}, &FailedError{Reason: "building query", Err: err}
	}

	ctx, cancel := context.WithTimeoutCause(ctx, r.cfg.Budget, errBudget)
	defer cancel()

	id, err := r.submit(ctx, query)
	if err != nil {
		return types.RawResearchArtifact{}, r.classify(ctx, "", err)
	}
	r.transition(id, StateSubmitted)

	run := &jobRun{
		id:       id,
		progress: newProgressTracker(progress, r.logger),
		seen:     make(map[string]bool),
	}
	artifact, err := r.poll(ctx, run)
	if err != nil {
		err = r.classify(ctx, id, err)
		var tErr *TimeoutError
		if errors.As(err, &tErr) {
			r.transition(id, StateTimedOut)
		} else {
			r.transition(id, StateFailed)
		}
		return types.RawResearchArtifact{}, err
	}
	r.transition(id, StateCompleted)
	return artifact, nil
}

// classify maps a context error caused by the budget to *TimeoutError.
func (r *Runner) classify(ctx context.Context, id string, err error) error {
	if errors.Is(context.Cause(ctx), errBudget) {
		return &TimeoutError{JobID: id, Budget: r.cfg.Budget}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var fErr *FailedError
	if errors.As(err, &fErr) {
		if fErr.JobID == "" {
			fErr.JobID = id
		}
		return fErr
	}
	return &FailedError{JobID: id, Err: err}
}

func (r *Runner) transition(id string, s State) {
	r.logger.Debug("research job state", zap.String("job_id", id), zap.Stringer("state", s))
	if r.onState != nil {
		r.onState(id, s)
	}
}

// jobRun is the per-run polling state.
type jobRun struct {
	id        string
	progress  *progressTracker
	citations []types.Citation
	seen      map[string]bool
}

// addCitations appends well-formed citations not yet seen.
func (j *jobRun) addCitations(cs []types.Citation) {
	for _, c := range cs {
		if !extract.WellFormedURL(c.URL) || j.seen[c.URL] {
			continue
		}
		j.seen[c.URL] = true
		j.citations = append(j.citations, c)
	}
}

func (r *Runner) poll(ctx context.Context, run *jobRun) (types.RawResearchArtifact, error) {
	r.transition(run.id, StatePolling)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.RawResearchArtifact{}, ctx.Err()
		case <-timer.C:
		}

		st, err := r.status(ctx, run.id)
		if err != nil {
			return types.RawResearchArtifact{}, err
		}
		run.addCitations(st.citations())
		run.progress.observe(st.PartialText)

		switch strings.ToLower(st.Status) {
		case "completed":
			text := st.PartialText
			if text == "" {
				text = run.progress.seen
			}
			run.addCitations(extract.ParseCitationLinks(text))
			r.logger.Info("research job completed",
				zap.String("job_id", run.id),
				zap.Int("text_len", len(text)),
				zap.Int("citations", len(run.citations)))
			return types.RawResearchArtifact{JobID: run.id, Text: text, Citations: run.citations}, nil
		case "failed":
			reason := st.Error
			if reason == "" {
				reason = "job reported failure"
			}
			return types.RawResearchArtifact{}, &FailedError{JobID: run.id, Reason: reason}
		case "running", "queued", "":
		default:
			r.logger.Warn("unknown job status, continuing to poll",
				zap.String("job_id", run.id), zap.String("status", st.Status))
		}
		timer.Reset(r.cfg.PollInterval)
	}
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// jobStatus is the wire form of GET {base}/jobs/{id}.
type jobStatus struct {
	Status      string         `json:"status"`
	PartialText string         `json:"partial_text"`
	Citations   []wireCitation `json:"citations"`
	Error       string         `json:"error"`
}

func (s jobStatus) citations() []types.Citation {
	out := make([]types.Citation, len(s.Citations))
	for i, c := range s.Citations {
		out[i] = types.Citation(c)
	}
	return out
}

// wireCitation accepts a citation as a bare URL string or a {title, url} object.
type wireCitation types.Citation

func (c *wireCitation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = wireCitation{URL: s}
		return nil
	}
	var obj types.Citation
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*c = wireCitation(obj)
	return nil
}

func (r *Runner) submit(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("encoding job request: %w", err)
	}
	body, err := r.do(ctx, http.MethodPost, r.jobsURL(""), payload)
	if err != nil {
		return "", err
	}
	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &FailedError{Reason: "decoding submission response", Err: err}
	}
	if strings.TrimSpace(resp.JobID) == "" {
		return "", &FailedError{Reason: "submission response has no job_id"}
	}
	r.logger.Info("research job submitted", zap.String("job_id", resp.JobID))
	return resp.JobID, nil
}

func (r *Runner) status(ctx context.Context, id string) (jobStatus, error) {
	body, err := r.do(ctx, http.MethodGet, r.jobsURL(id), nil)
	if err != nil {
		return jobStatus{}, err
	}
	var st jobStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return jobStatus{}, &FailedError{JobID: id, Reason: "decoding status response", Err: err}
	}
	return st, nil
}

func (r *Runner) jobsURL(id string) string {
	base := strings.TrimRight(r.cfg.BaseURL, "/") + "/jobs"
	if id == "" {
		return base
	}
	return base + "/" + url.PathEscape(id)
}

// do sends one request with 429/5xx retry and returns the 2xx body.
func (r *Runner) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	if r.tokens != nil {
		tok, err := r.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	resp, err := httputil.DoWithRetry(ctx, r.http, req, r.cfg.MaxRetries, r.logger)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FailedError{StatusCode: resp.StatusCode, Reason: strings.TrimSpace(string(data))}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}
