// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// AuxiliaryMatch is one supporting record (e.g. an internal credential)
// returned by a per-opportunity lookup.
type AuxiliaryMatch struct {
	Title           string   `json:"title" yaml:"title"`
	ClientChallenge string   `json:"client_challenge,omitempty" yaml:"client_challenge,omitempty"`
	Approach        string   `json:"approach,omitempty" yaml:"approach,omitempty"`
	ValueProvided   string   `json:"value_provided,omitempty" yaml:"value_provided,omitempty"`
	Industry        string   `json:"industry,omitempty" yaml:"industry,omitempty"`
	Technologies    []string `json:"technologies_used,omitempty" yaml:"technologies_used,omitempty"`
	URL             string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// LookupResult holds the outcome of one lookup, keyed by the originating
// opportunity's title. Exactly one of Matches and NoMatch is set; build
// values with Matched or NoMatch to keep that true.
//
// The JSON form doubles as the wire shape the credentials service is asked
// to answer with.
type LookupResult struct {
	OpportunityTitle string           `json:"opportunity_title,omitempty" yaml:"opportunity_title,omitempty"`
	Matches          []AuxiliaryMatch `json:"matches" yaml:"matches"`
	NoMatch          bool             `json:"no_matches_found" yaml:"no_matches_found"`

	// Failure explains why NoMatch is set when it came from an error rather
	// than from the service reporting no matches.
	Failure string `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Matched returns a result carrying matches. An empty list yields a no-match result.
func Matched(title string, matches []AuxiliaryMatch) LookupResult {
	if len(matches) == 0 {
		return NoMatch(title, "")
	}
	return LookupResult{OpportunityTitle: title, Matches: matches}
}

// NoMatch returns a result with the no-match flag set. reason is empty when
// the service itself reported no matches.
func NoMatch(title, reason string) LookupResult {
	return LookupResult{OpportunityTitle: title, Matches: []AuxiliaryMatch{}, NoMatch: true, Failure: reason}
}

// Failed reports whether the result stands in for a lookup error.
func (r LookupResult) Failed() bool {
	return r.NoMatch && r.Failure != ""
}
