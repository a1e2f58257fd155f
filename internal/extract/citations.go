// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	minURLLength  = 10
	urlTrailTrims = ".,;:"
)

var (
	// citationLinkRe matches a markdown citation bullet: - [title](url)
	citationLinkRe = regexp.MustCompile(`^\s*-\s+\[([^\]]+)\]\(([^\s)]+)\)\s*$`)

	// urlRe matches bare http(s) URLs in running text.
	urlRe = regexp.MustCompile(`https?://[^\s)\]"'<>]+`)
)

// ParseCitationLinks returns the title/URL pairs of every line of the form
// "- [title](url)". Lines that do not match, or whose URL is not an absolute
// http(s) URL, are skipped.
func ParseCitationLinks(text string) []types.Citation {
	var citations []types.Citation
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		m := citationLinkRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		link := m[2]
		if title == "" || !WellFormedURL(link) || seen[link] {
			continue
		}
		seen[link] = true
		citations = append(citations, types.Citation{Title: title, URL: link})
	}
	return citations
}

// ExtractURLs returns the distinct http(s) URLs in text in order of first
// appearance. Trailing punctuation is trimmed and short or malformed
// candidates are dropped.
func ExtractURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, raw := range urlRe.FindAllString(text, -1) {
		u := strings.TrimRight(raw, urlTrailTrims)
		if len(u) < minURLLength || !WellFormedURL(u) || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// WellFormedURL reports whether s is an absolute http(s) URL with a host.
func WellFormedURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// mergeURLs appends the URLs of extra not already present in base, up to limit.
func mergeURLs(base []string, extra []string, limit int) []string {
	seen := make(map[string]bool, len(base))
	for _, u := range base {
		seen[u] = true
	}
	for _, u := range extra {
		if limit > 0 && len(base) >= limit {
			break
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		base = append(base, u)
	}
	return base
}
