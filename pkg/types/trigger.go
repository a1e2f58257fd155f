// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the bd-research pipeline:
// the research trigger, the raw research artifact, extracted opportunities,
// lookup results, the execution trace, and the final report.
//
// All values are created fresh per run and are safe to serialize as JSON or YAML.
package types

import (
	"fmt"
	"strings"
)

const (
	// DefaultTimeWindowDays is the look-back window used when a trigger leaves it unset.
	DefaultTimeWindowDays = 30

	// MaxTimeWindowDays is the largest accepted look-back window.
	MaxTimeWindowDays = 365
)

// ResearchTrigger describes what to research. It is built once per user
// request and treated as read-only afterward.
type ResearchTrigger struct {
	// Sector is the industry or market to research (e.g. "defense"). Required.
	Sector string `json:"sector" yaml:"sector"`

	// Signals lists the free-text signals the analyst asked for
	// (e.g. "contract awards", "leadership change").
	Signals []string `json:"signals,omitempty" yaml:"signals,omitempty"`

	// Company is an optional company or topic focus.
	Company string `json:"company,omitempty" yaml:"company,omitempty"`

	// Geography narrows the research to a region.
	Geography string `json:"geography,omitempty" yaml:"geography,omitempty"`

	// MinValueUSD filters out opportunities below this estimated value.
	MinValueUSD int64 `json:"min_value_usd,omitempty" yaml:"min_value_usd,omitempty"`

	// TimeWindowDays is the look-back window in days (1..365, default 30).
	TimeWindowDays int `json:"time_window_days,omitempty" yaml:"time_window_days,omitempty"`

	// ServiceLines lists service lines whose opportunities should be prioritized.
	ServiceLines []string `json:"service_lines,omitempty" yaml:"service_lines,omitempty"`

	// OtherContext is any extra free-text guidance for the research job.
	OtherContext string `json:"other_context,omitempty" yaml:"other_context,omitempty"`

	// MaxOpportunities caps how many opportunities are looked up and reported.
	// Zero means the pipeline defaults.
	MaxOpportunities int `json:"max_opportunities,omitempty" yaml:"max_opportunities,omitempty"`
}

// Validate reports whether the trigger can start a run.
func (t ResearchTrigger) Validate() error {
	if strings.TrimSpace(t.Sector) == "" {
		return fmt.Errorf("sector is required")
	}
	if t.TimeWindowDays < 0 || t.TimeWindowDays > MaxTimeWindowDays {
		return fmt.Errorf("time window %d days out of range [1,%d]", t.TimeWindowDays, MaxTimeWindowDays)
	}
	if t.MinValueUSD < 0 {
		return fmt.Errorf("minimum value must not be negative")
	}
	if t.MaxOpportunities < 0 {
		return fmt.Errorf("max opportunities must not be negative")
	}
	return nil
}

// Window returns the effective look-back window in days.
func (t ResearchTrigger) Window() int {
	if t.TimeWindowDays <= 0 {
		return DefaultTimeWindowDays
	}
	return t.TimeWindowDays
}

// Limit returns MaxOpportunities bounded by ceiling. A zero or oversized
// MaxOpportunities yields ceiling.
func (t ResearchTrigger) Limit(ceiling int) int {
	if t.MaxOpportunities <= 0 || t.MaxOpportunities > ceiling {
		return ceiling
	}
	return t.MaxOpportunities
}

// Summary renders the trigger as a single line for reports and traces.
func (t ResearchTrigger) Summary() string {
	parts := []string{"Sector: " + t.Sector}
	if len(t.Signals) > 0 {
		parts = append(parts, "Signals: "+strings.Join(t.Signals, ", "))
	}
	if t.Company != "" {
		parts = append(parts, "Company: "+t.Company)
	}
	if t.Geography != "" {
		parts = append(parts, "Geography: "+t.Geography)
	}
	return strings.Join(parts, "; ")
}
