// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns semi-structured assistant output into typed records:
// research markdown into opportunities, credential answers into lookup
// results, and markdown citation bullets into title/URL pairs.
//
// Parse functions return *ParseError instead of guessing. Callers that need
// graceful degradation convert the error into an explicit no-data value.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/bd-research/pkg/types"
)

// ParseError reports text that matched none of the accepted forms.
type ParseError struct {
	// Kind names what was being parsed ("matches", "research").
	Kind string
	// Reason is a short description of the failure.
	Reason string
	// Snippet is the start of the offending input.
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parsing %s: %s", e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// NegativePhrases is the fixed set of phrases that mark an explicit
// "nothing found" answer when the text is not structured JSON. Matching is
// case-insensitive.
var NegativePhrases = []string{
	"no matching",
	"no relevant",
	"could not find",
}

const snippetLen = 200

// fenceRe matches a fenced code block and captures its body.
var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n(.*?)```")

// ParseMatches decodes a credentials answer for the opportunity title.
// It tries, in order: the whole body as JSON, the body of a fenced code
// block, and the outermost {...} span (JSON wrapped in prose). When none
// decodes, a body containing one of NegativePhrases yields an explicit
// no-match result; anything else is a *ParseError.
func ParseMatches(raw, title string) (types.LookupResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return types.LookupResult{}, &ParseError{Kind: "matches", Reason: "empty response"}
	}

	var lastErr error
	for _, candidate := range jsonCandidates(text) {
		result, err := decodeMatches(candidate, title)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	if HasNegativePhrase(text) {
		return types.NoMatch(title, ""), nil
	}

	return types.LookupResult{}, &ParseError{
		Kind:    "matches",
		Reason:  "no JSON object or known negative phrase",
		Snippet: snippet(text),
		Err:     lastErr,
	}
}

// HasNegativePhrase reports whether text contains one of NegativePhrases.
func HasNegativePhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range NegativePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// jsonCandidates lists the decode attempts for text in priority order.
func jsonCandidates(text string) []string {
	candidates := []string{text}
	if body, ok := StripFence(text); ok {
		candidates = append(candidates, body)
	}
	if span, ok := ObjectSpan(text); ok && span != text {
		candidates = append(candidates, span)
	}
	return candidates
}

// StripFence returns the body of the first fenced code block in text.
func StripFence(text string) (string, bool) {
	m := fenceRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ObjectSpan returns the text from the first '{' to the last '}'.
func ObjectSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeMatches decodes one JSON candidate. The object must carry at least
// one of the "matches" and "no_matches_found" keys.
func decodeMatches(candidate, title string) (types.LookupResult, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &keys); err != nil {
		return types.LookupResult{}, err
	}
	_, hasMatches := keys["matches"]
	_, hasFlag := keys["no_matches_found"]
	if !hasMatches && !hasFlag {
		return types.LookupResult{}, fmt.Errorf("object has neither matches nor no_matches_found")
	}

	var body struct {
		Matches []types.AuxiliaryMatch `json:"matches"`
	}
	if err := json.Unmarshal([]byte(candidate), &body); err != nil {
		return types.LookupResult{}, err
	}

	matches := make([]types.AuxiliaryMatch, 0, len(body.Matches))
	for _, m := range body.Matches {
		if strings.TrimSpace(m.Title) == "" {
			m.Title = "Unknown"
		}
		matches = append(matches, m)
	}
	// A populated list wins over a contradictory flag.
	return types.Matched(title, matches), nil
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	return truncateRunes(s, snippetLen) + "..."
}
