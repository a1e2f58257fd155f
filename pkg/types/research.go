// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// Citation is a titled source link reported by the research job.
type Citation struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// RawResearchArtifact is the unparsed output of one research job. The
// citation list grows while the job is polled and is frozen once the
// artifact is returned.
type RawResearchArtifact struct {
	// JobID is the handle assigned by the research service. Empty when the
	// text was supplied directly instead of by a job.
	JobID string `json:"job_id,omitempty" yaml:"job_id,omitempty"`

	// Text is the full markdown body produced by the job.
	Text string `json:"text" yaml:"text"`

	// Citations lists the sources the job reported, deduplicated by URL.
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// CitationURLs returns the artifact's citation URLs in order.
func (a RawResearchArtifact) CitationURLs() []string {
	urls := make([]string, 0, len(a.Citations))
	for _, c := range a.Citations {
		urls = append(urls, c.URL)
	}
	return urls
}

// Confidence grades how complete an extracted opportunity is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ParseConfidence maps free text onto the fixed confidence levels.
// Anything unrecognized is Low.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Opportunity is a business lead extracted from a research artifact.
type Opportunity struct {
	Title           string     `json:"title" yaml:"title"`
	Agency          string     `json:"agency,omitempty" yaml:"agency,omitempty"`
	Scope           string     `json:"scope,omitempty" yaml:"scope,omitempty"`
	EstimatedValue  string     `json:"estimated_value,omitempty" yaml:"estimated_value,omitempty"`
	Timeline        string     `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	Incumbent       string     `json:"incumbent,omitempty" yaml:"incumbent,omitempty"`
	ComplianceLevel string     `json:"compliance_level,omitempty" yaml:"compliance_level,omitempty"`
	Confidence      Confidence `json:"confidence" yaml:"confidence"`

	// Citations holds well-formed http(s) URLs supporting this opportunity.
	Citations []string `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// ResearchOutput is the structured form of a research artifact.
type ResearchOutput struct {
	ExecutiveSummary   string        `json:"executive_summary,omitempty" yaml:"executive_summary,omitempty"`
	Signals            []string      `json:"signals,omitempty" yaml:"signals,omitempty"`
	Opportunities      []Opportunity `json:"opportunities,omitempty" yaml:"opportunities,omitempty"`
	RecommendedActions []string      `json:"recommended_actions,omitempty" yaml:"recommended_actions,omitempty"`
	Citations          []string      `json:"citations,omitempty" yaml:"citations,omitempty"`
}
