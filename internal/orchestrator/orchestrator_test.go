// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/bd-research/internal/gateway"
	"github.com/pdiddy/bd-research/internal/jobs"
	"github.com/pdiddy/bd-research/internal/lookup"
	"github.com/pdiddy/bd-research/internal/synth"
	"github.com/pdiddy/bd-research/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const twoOpportunities = `## Executive Summary
Acme Corp is expanding its defense work.

## Key Signals
- New zero trust mandate

## Opportunity Details
### Zero Trust Rollout – DISA
- Scope: Identity modernization across components
- Value: $4 million
- [Program X](https://example.gov/x)

### Data Platform – Army
- Scope: Analytics platform build
- Timeline: FY27

## Recommended Actions
- Brief the DISA program office
`

type fakeJobs struct {
	artifact   types.RawResearchArtifact
	err        error
	increments []string
	calls      int32
}

func (f *fakeJobs) Run(_ context.Context, _ types.ResearchTrigger, progress jobs.ProgressFunc) (types.RawResearchArtifact, error) {
	atomic.AddInt32(&f.calls, 1)
	for _, inc := range f.increments {
		if progress != nil {
			progress(inc)
		}
	}
	return f.artifact, f.err
}

type lookupFunc func(ctx context.Context, opp types.Opportunity, sector string) (types.LookupResult, error)

func (f lookupFunc) Lookup(ctx context.Context, opp types.Opportunity, sector string) (types.LookupResult, error) {
	return f(ctx, opp, sector)
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []types.FinalReport
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, r types.FinalReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return f.err
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, synth.Input) (types.FinalReport, error) {
	return types.FinalReport{}, errors.New("analyst unavailable")
}

type failingCoordinator struct{}

func (failingCoordinator) LookupAll(context.Context, []types.Opportunity, string) (map[string]types.LookupResult, error) {
	return nil, errors.New("batch rejected")
}

func defenseArtifact() types.RawResearchArtifact {
	return types.RawResearchArtifact{
		JobID:     "job-7",
		Text:      twoOpportunities,
		Citations: []types.Citation{{Title: "Program X", URL: "https://example.gov/x"}},
	}
}

func firstMatchesSecondTimesOut() lookup.Lookuper {
	return lookupFunc(func(_ context.Context, opp types.Opportunity, _ string) (types.LookupResult, error) {
		if opp.Title == "Zero Trust Rollout" {
			return types.Matched(opp.Title, []types.AuxiliaryMatch{{Title: "ZT credential", URL: "https://ishare.example.com/1"}}), nil
		}
		return types.LookupResult{}, &gateway.TimeoutError{Timeout: 120 * time.Second}
	})
}

func newTestOrchestrator(t *testing.T, p Params) *Orchestrator {
	t.Helper()
	o, err := New(p)
	require.NoError(t, err)
	return o
}

func TestRun_EndToEnd(t *testing.T) {
	rec := &fakeRecorder{}
	o := newTestOrchestrator(t, Params{
		Jobs:     &fakeJobs{artifact: defenseArtifact()},
		Lookups:  lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
		Recorder: rec,
	})
	trigger := types.ResearchTrigger{Sector: "defense", Company: "Acme Corp", MaxOpportunities: 2}

	report, err := o.Run(context.Background(), trigger, nil)
	require.NoError(t, err)

	require.Len(t, report.TopOpportunities, 2)
	first := report.TopOpportunities[0]
	assert.Equal(t, "Zero Trust Rollout", first.Opportunity.Title)
	require.Len(t, first.Lookup.Matches, 1)
	assert.Equal(t, "https://ishare.example.com/1", first.Lookup.Matches[0].URL)
	assert.Contains(t, first.Opportunity.Citations, "https://example.gov/x")
	assert.Equal(t, types.PartialSupport, first.Validation)

	second := report.TopOpportunities[1]
	assert.Equal(t, "Data Platform", second.Opportunity.Title)
	assert.True(t, second.Lookup.NoMatch)
	assert.Empty(t, second.Lookup.Matches)
	assert.Equal(t, types.NoInternalData, second.Validation)
	assert.Empty(t, second.Opportunity.Citations, "a sibling's link is not inherited")

	assert.Equal(t, []string{
		types.StepSubmit, types.StepJob, types.StepExtract, types.StepLookup, types.StepSynthesis,
	}, report.Trace.Steps())
	assert.True(t, report.Degraded)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "Data Platform")
	assert.Contains(t, report.Errors[0], "timed out")

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, trigger, report.Trigger)
	assert.Equal(t, "Sector: defense; Company: Acme Corp", report.TriggerSummary)
	assert.Equal(t, []string{"https://example.gov/x"}, report.Citations)
	assert.False(t, report.GeneratedAt.IsZero())

	require.Len(t, rec.reports, 1)
	assert.Equal(t, report.RunID, rec.reports[0].RunID)
}

func TestRun_InheritsOnlyUnclaimedCitations(t *testing.T) {
	artifact := defenseArtifact()
	artifact.Citations = append(artifact.Citations, types.Citation{Title: "Budget", URL: "https://example.gov/budget"})
	o := newTestOrchestrator(t, Params{
		Jobs:    &fakeJobs{artifact: artifact},
		Lookups: lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
	})

	report, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)
	require.NoError(t, err)
	require.Len(t, report.TopOpportunities, 2)
	assert.Equal(t, []string{"https://example.gov/x"}, report.TopOpportunities[0].Opportunity.Citations)
	assert.Equal(t, []string{"https://example.gov/budget"}, report.TopOpportunities[1].Opportunity.Citations)
}

func TestRun_JobFailureIsFatal(t *testing.T) {
	rec := &fakeRecorder{}
	timeout := &jobs.TimeoutError{JobID: "job-9", Budget: time.Minute}
	var lookups int32
	o := newTestOrchestrator(t, Params{
		Jobs: &fakeJobs{err: timeout},
		Lookups: lookup.NewCoordinator(lookupFunc(func(context.Context, types.Opportunity, string) (types.LookupResult, error) {
			atomic.AddInt32(&lookups, 1)
			return types.LookupResult{}, nil
		}), 5, nil),
		Recorder: rec,
	})

	_, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)

	var tErr *jobs.TimeoutError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "job-9", tErr.JobID)
	assert.Equal(t, int32(0), atomic.LoadInt32(&lookups))
	assert.Empty(t, rec.reports)
}

func TestRun_ExtractionFailureDegrades(t *testing.T) {
	var lookups int32
	o := newTestOrchestrator(t, Params{
		Jobs: &fakeJobs{artifact: types.RawResearchArtifact{JobID: "job-1", Text: "The service returned only prose."}},
		Lookups: lookup.NewCoordinator(lookupFunc(func(context.Context, types.Opportunity, string) (types.LookupResult, error) {
			atomic.AddInt32(&lookups, 1)
			return types.LookupResult{}, nil
		}), 5, nil),
	})

	report, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Empty(t, report.TopOpportunities)
	assert.Equal(t, int32(0), atomic.LoadInt32(&lookups))
	assert.Equal(t, []string{
		types.StepSubmit, types.StepJob, types.StepExtract, types.StepLookup, types.StepSynthesis,
	}, report.Trace.Steps())
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "no structured data")
	assert.Contains(t, report.Markdown(), "No structured opportunities were found.")
}

func TestRun_SynthesisFallsBackToRules(t *testing.T) {
	o := newTestOrchestrator(t, Params{
		Jobs:        &fakeJobs{artifact: defenseArtifact()},
		Lookups:     lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
		Synthesizer: failingSynth{},
	})

	report, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)
	require.NoError(t, err)

	assert.Equal(t, synth.FallbackNote, report.ConfidenceNote)
	assert.Len(t, report.TopOpportunities, 2)
	assert.True(t, report.Degraded)
	assert.Contains(t, report.Errors[len(report.Errors)-1], "analyst unavailable")
}

func TestRun_CoordinatorErrorDegrades(t *testing.T) {
	o := newTestOrchestrator(t, Params{
		Jobs:    &fakeJobs{artifact: defenseArtifact()},
		Lookups: failingCoordinator{},
	})

	report, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	require.Len(t, report.TopOpportunities, 2)
	for _, ro := range report.TopOpportunities {
		assert.True(t, ro.Lookup.NoMatch)
		assert.Equal(t, types.NoInternalData, ro.Validation)
	}
}

func TestRun_LookupBatchFollowsTrigger(t *testing.T) {
	var mu sync.Mutex
	var looked []string
	o := newTestOrchestrator(t, Params{
		Jobs: &fakeJobs{artifact: defenseArtifact()},
		Lookups: lookup.NewCoordinator(lookupFunc(func(_ context.Context, opp types.Opportunity, sector string) (types.LookupResult, error) {
			mu.Lock()
			looked = append(looked, opp.Title+"/"+sector)
			mu.Unlock()
			return types.NoMatch(opp.Title, ""), nil
		}), 5, nil),
	})

	report, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense", MaxOpportunities: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Zero Trust Rollout/defense"}, looked)
	assert.Len(t, report.TopOpportunities, 1)
	assert.False(t, report.Degraded, "an explicit no-match is not a failure")
}

func TestRun_ProgressForwarded(t *testing.T) {
	o := newTestOrchestrator(t, Params{
		Jobs:    &fakeJobs{artifact: defenseArtifact(), increments: []string{"part 1", "part 2"}},
		Lookups: lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
	})

	var steps, jobText []string
	_, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, func(step, msg string) {
		steps = append(steps, step)
		if step == types.StepJob {
			jobText = append(jobText, msg)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"part 1", "part 2"}, jobText)
	assert.Equal(t, []string{
		types.StepSubmit, types.StepJob, types.StepJob, types.StepExtract, types.StepLookup, types.StepSynthesis,
	}, steps)
}

func TestRun_PanickingProgressIgnored(t *testing.T) {
	o := newTestOrchestrator(t, Params{
		Jobs:    &fakeJobs{artifact: defenseArtifact(), increments: []string{"x"}},
		Lookups: lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
	})

	report, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, func(string, string) {
		panic("closed channel")
	})
	require.NoError(t, err)
	assert.Len(t, report.TopOpportunities, 2)
}

func TestRun_RecorderErrorIgnored(t *testing.T) {
	o := newTestOrchestrator(t, Params{
		Jobs:     &fakeJobs{artifact: defenseArtifact()},
		Lookups:  lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
		Recorder: &fakeRecorder{err: errors.New("disk full")},
	})

	_, err := o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)
	assert.NoError(t, err)
}

func TestRunWithText(t *testing.T) {
	jobsRunner := &fakeJobs{}
	o := newTestOrchestrator(t, Params{
		Jobs:    jobsRunner,
		Lookups: lookup.NewCoordinator(firstMatchesSecondTimesOut(), 5, nil),
	})

	report, err := o.RunWithText(context.Background(), types.ResearchTrigger{Sector: "defense"}, twoOpportunities, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(0), atomic.LoadInt32(&jobsRunner.calls))
	assert.Len(t, report.TopOpportunities, 2)
	assert.Equal(t, []string{"https://example.gov/x"}, report.Citations)
	assert.Equal(t, []string{
		types.StepSubmit, types.StepJob, types.StepExtract, types.StepLookup, types.StepSynthesis,
	}, report.Trace.Steps())

	_, err = o.RunWithText(context.Background(), types.ResearchTrigger{Sector: "defense"}, "  ", nil)
	var cErr *ConfigError
	assert.ErrorAs(t, err, &cErr)
}

func TestNew_MaxBatchFromCoordinator(t *testing.T) {
	o := newTestOrchestrator(t, Params{Lookups: lookup.NewCoordinator(firstMatchesSecondTimesOut(), 2, nil)})
	assert.Equal(t, 2, o.maxBatch)

	o = newTestOrchestrator(t, Params{Lookups: lookup.NewCoordinator(firstMatchesSecondTimesOut(), 2, nil), MaxBatch: 4})
	assert.Equal(t, 4, o.maxBatch, "an explicit bound wins")

	o = newTestOrchestrator(t, Params{Lookups: failingCoordinator{}})
	assert.Equal(t, lookup.DefaultMaxBatch, o.maxBatch)
}

func TestConfigErrors(t *testing.T) {
	_, err := New(Params{})
	var cErr *ConfigError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "lookups", cErr.Field)

	o := newTestOrchestrator(t, Params{Lookups: failingCoordinator{}})
	_, err = o.Run(context.Background(), types.ResearchTrigger{Sector: "defense"}, nil)
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "jobs", cErr.Field)

	o = newTestOrchestrator(t, Params{Jobs: &fakeJobs{}, Lookups: failingCoordinator{}})
	_, err = o.Run(context.Background(), types.ResearchTrigger{}, nil)
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "trigger", cErr.Field)
}
