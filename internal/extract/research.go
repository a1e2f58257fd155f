// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	maxBullets       = 10
	maxOpportunities = 10
	maxCitations     = 20
	maxScopeRunes    = 500
	minBlockLength   = 20
)

// sectionKind names the research report sections the parser understands.
type sectionKind string

const (
	sectionSummary       sectionKind = "executive_summary"
	sectionSignals       sectionKind = "signals"
	sectionOpportunities sectionKind = "opportunities"
	sectionActions       sectionKind = "actions"
	sectionSources       sectionKind = "sources"
)

// sectionPatterns classify a heading's text. Headings are matched whole.
var sectionPatterns = []struct {
	kind sectionKind
	re   *regexp.Regexp
}{
	{sectionSummary, regexp.MustCompile(`(?i)^executive\s+summary$`)},
	{sectionSignals, regexp.MustCompile(`(?i)^(signals?\s+detected|key\s+signals?)$`)},
	{sectionOpportunities, regexp.MustCompile(`(?i)^(opportunity\s+details?|opportunities)$`)},
	{sectionActions, regexp.MustCompile(`(?i)^(recommended\s+(actions?|next\s+steps?)|next\s+steps?)$`)},
	{sectionSources, regexp.MustCompile(`(?i)^(sources?|references?|citations?)$`)},
}

var (
	bulletRe = regexp.MustCompile(`^(?:[•*-]|\d+[.)])\s+`)
	fieldRe  = regexp.MustCompile(`(?i)^(scope|value|est(?:imated)?\.?\s*value|timeline|incumbent|cmmc(?:\s+(?:level|compliance))?|compliance)\s*:\s*(.*)$`)
	agencyRe = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*$`)
)

// titleSeparators split "Title – Agency" lines, tried in order.
var titleSeparators = []string{" – ", " - ", " — "}

// ParseResearch parses a research artifact into its executive summary,
// signals, opportunities, recommended actions, and citations. A body that
// is a ResearchOutput JSON object, bare or in a fenced block, is decoded
// directly; anything else is read as markdown. It returns a *ParseError
// when the text is empty or has no recognizable section.
func ParseResearch(markdown string) (types.ResearchOutput, error) {
	text := strings.TrimSpace(markdown)
	if text == "" {
		return types.ResearchOutput{}, &ParseError{Kind: "research", Reason: "empty text"}
	}

	candidates := []string{text}
	if body, ok := StripFence(text); ok {
		candidates = append(candidates, body)
	}
	for _, candidate := range candidates {
		if out, err := decodeResearch(candidate); err == nil {
			return out, nil
		}
	}

	sections := splitSections(markdown)
	if len(sections) == 0 {
		return types.ResearchOutput{}, &ParseError{
			Kind:    "research",
			Reason:  "no recognizable sections",
			Snippet: snippet(strings.TrimSpace(markdown)),
		}
	}

	citations := ExtractURLs(joinLines(sections[sectionSources]))
	citations = mergeURLs(citations, ExtractURLs(markdown), maxCitations)
	if len(citations) > maxCitations {
		citations = citations[:maxCitations]
	}

	return types.ResearchOutput{
		ExecutiveSummary:   firstParagraph(sections[sectionSummary]),
		Signals:            bullets(sections[sectionSignals]),
		Opportunities:      opportunities(sections[sectionOpportunities]),
		RecommendedActions: bullets(sections[sectionActions]),
		Citations:          citations,
	}, nil
}

// decodeResearch decodes one JSON candidate. The object must carry an
// executive summary or an opportunities list; the result is held to the
// same limits as the markdown path.
func decodeResearch(candidate string) (types.ResearchOutput, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &keys); err != nil {
		return types.ResearchOutput{}, err
	}
	_, hasSummary := keys["executive_summary"]
	_, hasOpps := keys["opportunities"]
	if !hasSummary && !hasOpps {
		return types.ResearchOutput{}, fmt.Errorf("object has neither executive_summary nor opportunities")
	}

	var out types.ResearchOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return types.ResearchOutput{}, err
	}

	var opps []types.Opportunity
	for _, o := range out.Opportunities {
		o.Title = strings.TrimSpace(o.Title)
		if o.Title == "" {
			continue
		}
		if len(opps) == maxOpportunities {
			break
		}
		o.Scope = truncateRunes(o.Scope, maxScopeRunes)
		o.Confidence = types.ParseConfidence(string(o.Confidence))
		o.Citations = wellFormed(o.Citations, maxCitations)
		opps = append(opps, o)
	}
	out.Opportunities = opps
	out.Signals = headStrings(out.Signals, maxBullets)
	out.RecommendedActions = headStrings(out.RecommendedActions, maxBullets)
	out.Citations = wellFormed(out.Citations, maxCitations)
	return out, nil
}

func wellFormed(urls []string, limit int) []string {
	var out []string
	for _, u := range urls {
		if len(out) == limit {
			break
		}
		if WellFormedURL(u) {
			out = append(out, u)
		}
	}
	return out
}

func headStrings(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// line is one markdown line with its indentation measured.
type line struct {
	text   string // trimmed
	indent int
	level  int // heading level, 0 when not a heading
}

func parseLine(raw string) line {
	trimmed := strings.TrimSpace(raw)
	indent := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
	level := 0
	if strings.HasPrefix(trimmed, "#") {
		level = len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
	}
	return line{text: trimmed, indent: indent, level: level}
}

// headingText strips markers and emphasis from a heading line.
func headingText(l line) string {
	t := strings.TrimSpace(strings.TrimLeft(l.text, "#"))
	t = strings.ReplaceAll(t, "**", "")
	return strings.TrimSpace(strings.TrimSuffix(t, ":"))
}

func classify(heading string) (sectionKind, bool) {
	for _, p := range sectionPatterns {
		if p.re.MatchString(heading) {
			return p.kind, true
		}
	}
	return "", false
}

// splitSections groups lines under the known section headings. Headings
// deeper than the enclosing section heading stay inside that section; any
// other unknown heading closes it.
func splitSections(markdown string) map[sectionKind][]line {
	sections := make(map[sectionKind][]line)
	var current sectionKind
	currentLevel := 0

	for _, raw := range strings.Split(markdown, "\n") {
		l := parseLine(raw)
		if l.level > 0 {
			if kind, ok := classify(headingText(l)); ok {
				current = kind
				currentLevel = l.level
				if _, exists := sections[kind]; !exists {
					sections[kind] = nil
				}
				continue
			}
			if current != "" && l.level <= currentLevel {
				current = ""
				continue
			}
		}
		if current != "" {
			sections[current] = append(sections[current], l)
		}
	}
	return sections
}

func joinLines(lines []line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.text
	}
	return strings.Join(texts, "\n")
}

// firstParagraph returns the first non-empty paragraph, joined onto one line.
func firstParagraph(lines []line) string {
	var parts []string
	for _, l := range lines {
		if l.text == "" || l.level > 0 {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, l.text)
	}
	return strings.Join(parts, " ")
}

// bullets returns up to maxBullets items. Continuation lines join the
// preceding bullet. Without any bullet markers every non-empty line counts.
func bullets(lines []line) []string {
	var items []string
	inBullet := false
	for _, l := range lines {
		if l.text == "" || l.level > 0 {
			inBullet = false
			continue
		}
		if loc := bulletRe.FindStringIndex(l.text); loc != nil {
			items = append(items, cleanText(l.text[loc[1]:]))
			inBullet = true
			continue
		}
		if inBullet {
			items[len(items)-1] = strings.TrimSpace(items[len(items)-1] + " " + cleanText(l.text))
		}
	}

	if len(items) == 0 {
		for _, l := range lines {
			if l.text != "" && l.level == 0 {
				items = append(items, cleanText(l.text))
			}
		}
	}

	var out []string
	for _, it := range items {
		if it != "" {
			out = append(out, it)
		}
	}
	if len(out) > maxBullets {
		out = out[:maxBullets]
	}
	return out
}

// opportunities splits the opportunities section into blocks and parses each.
// Sub-headings start blocks when present; otherwise bullets or numbered items
// at the shallowest indentation do, and deeper lines continue the block.
func opportunities(lines []line) []types.Opportunity {
	var blocks [][]line
	useHeadings := false
	minIndent := -1
	for _, l := range lines {
		if l.level > 0 {
			useHeadings = true
		}
		if titleBullet(l) && (minIndent < 0 || l.indent < minIndent) {
			minIndent = l.indent
		}
	}

	for _, l := range lines {
		var starts bool
		if useHeadings {
			starts = l.level > 0
		} else {
			starts = l.indent == minIndent && titleBullet(l)
		}
		switch {
		case starts:
			blocks = append(blocks, []line{l})
		case len(blocks) > 0 && l.text != "":
			blocks[len(blocks)-1] = append(blocks[len(blocks)-1], l)
		}
	}

	var opps []types.Opportunity
	for _, b := range blocks {
		if opp, ok := parseOpportunity(b); ok {
			opps = append(opps, opp)
			if len(opps) == maxOpportunities {
				break
			}
		}
	}
	return opps
}

// titleBullet reports whether l is a bullet that can open an opportunity
// block. Field bullets ("- Value: $2M") and citation links continue a block.
func titleBullet(l line) bool {
	if l.level > 0 {
		return false
	}
	loc := bulletRe.FindStringIndex(l.text)
	if loc == nil || citationLinkRe.MatchString(l.text) {
		return false
	}
	return !fieldRe.MatchString(cleanText(l.text[loc[1]:]))
}

// parseOpportunity reads one block: the first line is the title (and
// agency), later lines carry labeled fields and citation links.
func parseOpportunity(block []line) (types.Opportunity, bool) {
	text := joinLines(block)
	if len(strings.TrimSpace(text)) < minBlockLength {
		return types.Opportunity{}, false
	}

	titleLine := block[0].text
	if block[0].level > 0 {
		titleLine = headingText(block[0])
	} else if loc := bulletRe.FindStringIndex(titleLine); loc != nil {
		titleLine = titleLine[loc[1]:]
	}
	titleLine = cleanText(titleLine)
	titleLine = strings.TrimSpace(strings.TrimSuffix(titleLine, ":"))
	title, agency := splitTitleAgency(stripLeadingNumber(titleLine))
	if title == "" {
		return types.Opportunity{}, false
	}

	fields := parseFields(block[1:])
	scope := fields["scope"]
	if scope == "" {
		scope = titleLine
	}

	opp := types.Opportunity{
		Title:           title,
		Agency:          agency,
		Scope:           truncateRunes(scope, maxScopeRunes),
		EstimatedValue:  fields["value"],
		Timeline:        fields["timeline"],
		Incumbent:       fields["incumbent"],
		ComplianceLevel: fields["compliance"],
		Citations:       ExtractURLs(text),
	}
	opp.Confidence = assessConfidence(opp)
	return opp, true
}

// parseFields collects labeled values. Scope may continue on following
// unlabeled, unbulleted lines.
func parseFields(lines []line) map[string]string {
	fields := make(map[string]string)
	continuing := ""
	for _, l := range lines {
		t := l.text
		bulleted := false
		if loc := bulletRe.FindStringIndex(t); loc != nil {
			t = t[loc[1]:]
			bulleted = true
		}
		t = cleanText(t)

		if m := fieldRe.FindStringSubmatch(t); m != nil {
			key := fieldKey(m[1])
			if _, dup := fields[key]; !dup {
				fields[key] = collapseSpace(m[2])
			}
			continuing = ""
			if key == "scope" {
				continuing = key
			}
			continue
		}
		if continuing != "" && !bulleted && l.level == 0 {
			fields[continuing] = collapseSpace(fields[continuing] + " " + t)
			continue
		}
		continuing = ""
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields
}

func fieldKey(label string) string {
	l := strings.ToLower(label)
	switch {
	case l == "scope":
		return "scope"
	case strings.HasSuffix(l, "value"):
		return "value"
	case l == "timeline":
		return "timeline"
	case l == "incumbent":
		return "incumbent"
	default:
		return "compliance"
	}
}

// splitTitleAgency splits "Title – Agency" or "Title (Agency)".
func splitTitleAgency(s string) (string, string) {
	for _, sep := range titleSeparators {
		if before, after, ok := strings.Cut(s, sep); ok {
			return strings.TrimSpace(before), strings.TrimSpace(after)
		}
	}
	if m := agencyRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(s), ""
}

// assessConfidence scores the fields present: a monetary value counts two,
// a timeline and a compliance level one each. Three or more is High, one
// or more Medium.
func assessConfidence(opp types.Opportunity) types.Confidence {
	score := 0
	v := strings.ToLower(opp.EstimatedValue)
	if strings.Contains(v, "$") || strings.Contains(v, "million") || strings.Contains(v, "billion") {
		score += 2
	}
	if opp.Timeline != "" {
		score++
	}
	if opp.ComplianceLevel != "" {
		score++
	}
	switch {
	case score >= 3:
		return types.ConfidenceHigh
	case score >= 1:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

var leadingNumberRe = regexp.MustCompile(`^\d+[.)]\s+`)

func stripLeadingNumber(s string) string {
	return leadingNumberRe.ReplaceAllString(s, "")
}

// cleanText drops bold markers and collapses whitespace.
func cleanText(s string) string {
	return collapseSpace(strings.ReplaceAll(s, "**", ""))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
