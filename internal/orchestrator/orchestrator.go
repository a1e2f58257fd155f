// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator sequences one research run: research job, extraction,
// parallel lookups, and synthesis. Only configuration errors and research
// job failures are returned; every later stage degrades into a partial
// report that says what is missing.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/bd-research/internal/extract"
	"github.com/pdiddy/bd-research/internal/jobs"
	"github.com/pdiddy/bd-research/internal/lookup"
	"github.com/pdiddy/bd-research/internal/synth"
	"github.com/pdiddy/bd-research/pkg/types"
)

const maxReportCitations = 20

// ConfigError reports a run that cannot start: a missing collaborator or
// endpoint, or an invalid trigger.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// JobRunner runs the research job for a trigger. *jobs.Runner implements it.
type JobRunner interface {
	Run(ctx context.Context, trigger types.ResearchTrigger, progress jobs.ProgressFunc) (types.RawResearchArtifact, error)
}

// Coordinator looks up a batch of opportunities. *lookup.Coordinator implements it.
type Coordinator interface {
	LookupAll(ctx context.Context, items []types.Opportunity, sector string) (map[string]types.LookupResult, error)
}

// Recorder stores finished reports. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, report types.FinalReport) error
}

// ProgressFunc receives progress for one run. step is one of the types.Step
// constants; for types.StepJob the message is new research text.
type ProgressFunc func(step, message string)

// Params holds an orchestrator's collaborators and bounds.
type Params struct {
	// Jobs runs research jobs. Required by Run; RunWithText does not use it.
	Jobs JobRunner

	// Lookups validates opportunities. Required.
	Lookups Coordinator

	// Synthesizer composes the report. Nil uses synth.Rules.
	Synthesizer synth.Synthesizer

	// Recorder, when set, receives every finished report.
	Recorder Recorder

	// MaxBatch bounds lookups per run. Zero takes the coordinator's own
	// bound when it has a MaxBatch method, else 5. ReportSize bounds the
	// report's opportunities (default 3). Both are further bounded by the
	// trigger's MaxOpportunities.
	MaxBatch   int
	ReportSize int

	Logger *zap.Logger
}

// Orchestrator runs research pipelines. It keeps no per-run state and is
// safe for concurrent runs.
type Orchestrator struct {
	jobs       JobRunner
	lookups    Coordinator
	synth      synth.Synthesizer
	recorder   Recorder
	maxBatch   int
	reportSize int
	logger     *zap.Logger
	now        func() time.Time
}

// New returns an orchestrator over p, or *ConfigError when a required
// collaborator is missing.
func New(p Params) (*Orchestrator, error) {
	if p.Lookups == nil {
		return nil, &ConfigError{Field: "lookups", Message: "no lookup coordinator"}
	}
	if p.Synthesizer == nil {
		p.Synthesizer = synth.Rules{}
	}
	if p.MaxBatch <= 0 {
		p.MaxBatch = lookup.DefaultMaxBatch
		if b, ok := p.Lookups.(interface{ MaxBatch() int }); ok {
			p.MaxBatch = b.MaxBatch()
		}
	}
	if p.ReportSize <= 0 {
		p.ReportSize = synth.DefaultReportSize
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Orchestrator{
		jobs:       p.Jobs,
		lookups:    p.Lookups,
		synth:      p.Synthesizer,
		recorder:   p.Recorder,
		maxBatch:   p.MaxBatch,
		reportSize: p.ReportSize,
		logger:     p.Logger,
		now:        time.Now,
	}, nil
}

// run is the state of one pipeline execution.
type run struct {
	id       string
	trigger  types.ResearchTrigger
	trace    *types.Tracer
	progress ProgressFunc
	logger   *zap.Logger
	degraded bool
	errs     []string
}

func (r *run) fail(step, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.degraded = true
	r.errs = append(r.errs, msg)
	r.trace.Add(step, "%s", msg)
	r.logger.Warn("stage degraded", zap.String("step", step), zap.String("reason", msg))
}

// notify forwards a progress message. A panicking callback is logged and ignored.
func (r *run) notify(step, message string) {
	if r.progress == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("progress callback panicked", zap.Any("panic", rec))
		}
	}()
	r.progress(step, message)
}

func (o *Orchestrator) start(trigger types.ResearchTrigger, progress ProgressFunc) (*run, error) {
	if err := trigger.Validate(); err != nil {
		return nil, &ConfigError{Field: "trigger", Message: err.Error()}
	}
	id := uuid.NewString()
	return &run{
		id:       id,
		trigger:  trigger,
		trace:    types.NewTracer(),
		progress: progress,
		logger:   o.logger.With(zap.String("run_id", id)),
	}, nil
}

// Run executes the full pipeline for trigger. It fails with *ConfigError
// for an invalid trigger or missing job runner, and with the research job's
// error (*jobs.TimeoutError, *jobs.FailedError, or a context error) when the
// job does not complete. Any later failure yields a degraded report.
func (o *Orchestrator) Run(ctx context.Context, trigger types.ResearchTrigger, progress ProgressFunc) (types.FinalReport, error) {
	if o.jobs == nil {
		return types.FinalReport{}, &ConfigError{Field: "jobs", Message: "no research job runner"}
	}
	r, err := o.start(trigger, progress)
	if err != nil {
		return types.FinalReport{}, err
	}

	r.logger.Info("research run started", zap.String("trigger", trigger.Summary()))
	r.trace.Add(types.StepSubmit, "submitting research job: %s", trigger.Summary())
	r.notify(types.StepSubmit, "Submitting research job...")

	artifact, err := o.jobs.Run(ctx, trigger, func(increment string) {
		r.notify(types.StepJob, increment)
	})
	if err != nil {
		r.trace.Add(types.StepError, "research job failed: %v", err)
		r.logger.Error("research job failed", zap.Error(err))
		return types.FinalReport{}, fmt.Errorf("research job: %w", err)
	}
	r.trace.Add(types.StepJob, "research job %s completed: %d characters, %d citations",
		artifact.JobID, len(artifact.Text), len(artifact.Citations))

	return o.finish(ctx, r, artifact), nil
}

// RunWithText runs the pipeline on research text obtained elsewhere,
// skipping the research job. Citation bullets in text become the
// artifact's citations.
func (o *Orchestrator) RunWithText(ctx context.Context, trigger types.ResearchTrigger, text string, progress ProgressFunc) (types.FinalReport, error) {
	if strings.TrimSpace(text) == "" {
		return types.FinalReport{}, &ConfigError{Field: "research text", Message: "empty"}
	}
	r, err := o.start(trigger, progress)
	if err != nil {
		return types.FinalReport{}, err
	}

	artifact := types.RawResearchArtifact{Text: text, Citations: extract.ParseCitationLinks(text)}
	r.logger.Info("research run started from supplied text", zap.String("trigger", trigger.Summary()))
	r.trace.Add(types.StepSubmit, "using supplied research output: %s", trigger.Summary())
	r.trace.Add(types.StepJob, "research output supplied: %d characters, %d citations",
		len(artifact.Text), len(artifact.Citations))

	return o.finish(ctx, r, artifact), nil
}

// finish runs the stages after the research job. It always returns a report.
func (o *Orchestrator) finish(ctx context.Context, r *run, artifact types.RawResearchArtifact) types.FinalReport {
	r.notify(types.StepExtract, "Extracting opportunities...")
	research := o.extract(r, artifact)

	batch := research.Opportunities
	if n := r.trigger.Limit(o.maxBatch); len(batch) > n {
		batch = batch[:n]
	}
	r.notify(types.StepLookup, fmt.Sprintf("Looking up credentials for %d opportunities...", len(batch)))
	results := o.lookup(ctx, r, batch)

	r.notify(types.StepSynthesis, "Synthesizing report...")
	report := o.synthesize(ctx, r, synth.Input{
		Trigger:    r.trigger,
		Research:   research,
		Lookups:    results,
		ReportSize: o.reportSize,
	})

	report.RunID = r.id
	report.Trigger = r.trigger
	if report.TriggerSummary == "" {
		report.TriggerSummary = r.trigger.Summary()
	}
	report.Citations = reportCitations(research, artifact)
	report.Degraded = r.degraded
	report.Errors = r.errs
	report.Trace = r.trace.Trace()
	report.GeneratedAt = o.now().UTC()

	r.logger.Info("research run finished",
		zap.Int("opportunities", len(report.TopOpportunities)),
		zap.Bool("degraded", report.Degraded),
		zap.Duration("duration", report.Trace.Duration))

	if o.recorder != nil {
		if err := o.recorder.Record(ctx, report); err != nil {
			r.logger.Warn("recording run failed", zap.Error(err))
		}
	}
	return report
}

// extract parses the artifact. A parse failure degrades the run to zero
// opportunities. Opportunities without their own citations inherit the
// artifact's citations that no other opportunity cites.
func (o *Orchestrator) extract(r *run, artifact types.RawResearchArtifact) types.ResearchOutput {
	research, err := extract.ParseResearch(artifact.Text)
	if err != nil {
		r.fail(types.StepExtract, "extraction found no structured data: %v", err)
		return types.ResearchOutput{}
	}

	inherited := unclaimed(artifact.CitationURLs(), research.Opportunities)
	for i := range research.Opportunities {
		if len(research.Opportunities[i].Citations) == 0 && len(inherited) > 0 {
			research.Opportunities[i].Citations = append([]string(nil), inherited...)
		}
	}
	r.trace.Add(types.StepExtract, "extracted %d opportunities, %d signals, %d actions",
		len(research.Opportunities), len(research.Signals), len(research.RecommendedActions))
	return research
}

// unclaimed returns the urls no opportunity cites.
func unclaimed(urls []string, opps []types.Opportunity) []string {
	claimed := make(map[string]bool)
	for _, o := range opps {
		for _, u := range o.Citations {
			claimed[u] = true
		}
	}
	var out []string
	for _, u := range urls {
		if !claimed[u] {
			out = append(out, u)
		}
	}
	return out
}

// lookup validates batch. A coordinator error leaves every item without
// lookup data; per-item failures arrive as no-match results.
func (o *Orchestrator) lookup(ctx context.Context, r *run, batch []types.Opportunity) map[string]types.LookupResult {
	if len(batch) == 0 {
		r.trace.Add(types.StepLookup, "no opportunities to look up")
		return nil
	}

	results, err := o.lookups.LookupAll(ctx, batch, r.trigger.Sector)
	if err != nil {
		r.fail(types.StepLookup, "lookups could not start: %v", err)
		return nil
	}

	matched, empty, failed := 0, 0, 0
	for _, opp := range batch {
		res, ok := results[opp.Title]
		switch {
		case !ok:
			continue
		case res.Failed():
			failed++
			r.degraded = true
			r.errs = append(r.errs, fmt.Sprintf("lookup %q: %s", opp.Title, res.Failure))
		case res.NoMatch:
			empty++
		default:
			matched++
		}
	}
	r.trace.Add(types.StepLookup, "lookups complete: %d matched, %d without matches, %d failed",
		matched, empty, failed)
	return results
}

// synthesize composes the report, falling back to rules when the
// configured synthesizer fails.
func (o *Orchestrator) synthesize(ctx context.Context, r *run, in synth.Input) types.FinalReport {
	report, err := o.synth.Synthesize(ctx, in)
	if err == nil {
		r.trace.Add(types.StepSynthesis, "report composed with %d opportunities", len(report.TopOpportunities))
		return report
	}
	r.fail(types.StepSynthesis, "synthesis failed, using rule-based report: %v", err)
	report, _ = synth.Rules{Note: synth.FallbackNote}.Synthesize(ctx, in)
	return report
}

// reportCitations merges the parsed and job-reported citation URLs.
func reportCitations(research types.ResearchOutput, artifact types.RawResearchArtifact) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{research.Citations, artifact.CitationURLs()} {
		for _, u := range list {
			if len(out) == maxReportCitations {
				return out
			}
			if seen[u] || !extract.WellFormedURL(u) {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
