// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sync"
	"time"
)

// Trace steps recorded by the orchestrator, in the order a full run emits them.
const (
	StepSubmit    = "submit"
	StepJob       = "job"
	StepExtract   = "extract"
	StepLookup    = "lookup"
	StepSynthesis = "synthesis"
	StepError     = "error"
)

// TraceEntry is one human-readable step description.
type TraceEntry struct {
	Step    string    `json:"step" yaml:"step"`
	Message string    `json:"message" yaml:"message"`
	At      time.Time `json:"at" yaml:"at"`
}

// ExecutionTrace is the ordered diagnostic log of one run plus its elapsed time.
type ExecutionTrace struct {
	Entries  []TraceEntry  `json:"entries" yaml:"entries"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Steps returns the step names in order.
func (t ExecutionTrace) Steps() []string {
	steps := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		steps[i] = e.Step
	}
	return steps
}

// Tracer appends to an ExecutionTrace for the lifetime of one run. Entries
// are advisory and never affect control flow. Safe for concurrent use.
type Tracer struct {
	mu      sync.Mutex
	start   time.Time
	entries []TraceEntry
	now     func() time.Time
}

// NewTracer starts a trace whose duration is measured from now.
func NewTracer() *Tracer {
	return &Tracer{start: time.Now(), now: time.Now}
}

// Add appends an entry.
func (t *Tracer) Add(step, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TraceEntry{Step: step, Message: fmt.Sprintf(format, args...), At: t.now()})
}

// Trace returns a copy of the entries recorded so far and the elapsed
// duration. The duration never decreases between calls.
func (t *Tracer) Trace() ExecutionTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]TraceEntry, len(t.entries))
	copy(entries, t.entries)
	return ExecutionTrace{Entries: entries, Duration: t.now().Sub(t.start)}
}
