// Package parse turns the analysis model's semi-structured reply into typed,
// span-located pattern records. The model's output is inherently unreliable,
// so everything here degrades to fewer patterns instead of failing.
package parse

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/verseworks/prosody/internal/observe"
)

// FloodThreshold is the candidate count beyond which low-confidence
// candidates are dropped to control output growth.
const FloodThreshold = 100

// Parsed is the parser's output: unmerged candidate patterns plus the
// trailing analysis summary.
type Parsed struct {
	Patterns    []observe.Pattern
	RhymeScheme string
	Meter       string
}

var (
	markerRe   = regexp.MustCompile(`(?m)^\s*PATTERN\s*\d*\s*:`)
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)

	schemeRe = regexp.MustCompile(`(?mi)^\s*RHYME\s*SCHEME\s*:\s*(.+)$`)
	meterRe  = regexp.MustCompile(`(?mi)^\s*METER\s*:\s*(.+)$`)

	quoteRe = regexp.MustCompile(`"([^"\n]+)"|“([^“”\n]+)”`)

	featureRe     = regexp.MustCompile(`(?mi)^\s*(?:FEATURE|PRIMARY)\s*:\s*(.+)$`)
	secondaryRe   = regexp.MustCompile(`(?mi)^\s*SECONDARY\s*:\s*(.+)$`)
	confidenceRe  = regexp.MustCompile(`(?i)CONFIDENCE\s*:\s*(high|medium|low)`)
	explanationRe = regexp.MustCompile(`(?si)EXPLANATION\s*:\s*(.+)\z`)
	typeFieldRe   = regexp.MustCompile(`(?mi)^\s*TYPE\s*:\s*(.+)$`)
)

// Parse splits the raw reply into pattern blocks, extracts typed fields, and
// locates each quoted example against the original text. Candidates with
// fewer than 2 or more than 8 located segments are rejected. The result is
// ordered by confidence (high first), then by segment count (more first),
// a contract downstream code and callers rely on.
func Parse(reply, original string) Parsed {
	body, scheme, meter := splitAnalysis(reply)
	out := Parsed{RhymeScheme: scheme, Meter: meter}

	loc := NewLocator(original)
	for _, block := range splitBlocks(body) {
		p, ok := parseBlock(block, loc)
		if !ok {
			continue
		}
		out.Patterns = append(out.Patterns, p)
	}

	if len(out.Patterns) > FloodThreshold {
		kept := out.Patterns[:0]
		for _, p := range out.Patterns {
			if p.Confidence != observe.ConfidenceLow {
				kept = append(kept, p)
			}
		}
		out.Patterns = kept
	}

	OrderCandidates(out.Patterns)
	return out
}

// OrderCandidates sorts patterns by confidence (high first) then segment
// count (more first). The sort is stable so equal candidates keep reply order.
func OrderCandidates(patterns []observe.Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		ci, cj := observe.ConfidenceRank(patterns[i].Confidence), observe.ConfidenceRank(patterns[j].Confidence)
		if ci != cj {
			return ci > cj
		}
		return len(patterns[i].Segments) > len(patterns[j].Segments)
	})
}

// splitAnalysis cuts the reply at the trailing rhyme-scheme/meter summary and
// extracts both values. "none" answers are treated as absent.
func splitAnalysis(reply string) (body, scheme, meter string) {
	body = reply

	cut := len(reply)
	if m := schemeRe.FindStringSubmatchIndex(reply); m != nil {
		if m[0] < cut {
			cut = m[0]
		}
		scheme = cleanAnalysisValue(reply[m[2]:m[3]])
	}
	if m := meterRe.FindStringSubmatchIndex(reply); m != nil {
		if m[0] < cut {
			cut = m[0]
		}
		meter = cleanAnalysisValue(reply[m[2]:m[3]])
	}

	return reply[:cut], scheme, meter
}

func cleanAnalysisValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "none") || strings.EqualFold(v, "n/a") {
		return ""
	}
	return v
}

// splitBlocks tries, in order: the fixed PATTERN: marker, a numbered-list
// variant, and a naive keyword split as last resort.
func splitBlocks(body string) []string {
	if blocks := splitOn(body, markerRe); len(blocks) > 0 {
		return blocks
	}
	if blocks := splitOn(body, numberedRe); len(blocks) > 0 {
		return blocks
	}

	var blocks []string
	for _, part := range strings.Split(body, "PATTERN") {
		if strings.TrimSpace(part) != "" {
			blocks = append(blocks, part)
		}
	}
	return blocks
}

// splitOn returns the text between successive matches of re, excluding any
// preamble before the first match.
func splitOn(body string, re *regexp.Regexp) []string {
	locs := re.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return nil
	}

	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		block := body[loc[1]:end]
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// parseBlock extracts one candidate pattern from a block and locates its
// quoted examples. Returns false when the block yields fewer than 2 or more
// than 8 located segments.
func parseBlock(block string, loc *Locator) (observe.Pattern, bool) {
	label := blockLabel(block)

	p := observe.Pattern{
		ID:         uuid.NewString(),
		Type:       observe.MapLabel(label),
		Confidence: observe.ConfidenceMedium,
	}

	if m := confidenceRe.FindStringSubmatch(block); m != nil {
		p.Confidence = observe.Confidence(strings.ToLower(m[1]))
	}
	if m := featureRe.FindStringSubmatch(block); m != nil {
		p.Acoustic.PrimaryFeature = strings.TrimSpace(m[1])
	}
	if m := secondaryRe.FindStringSubmatch(block); m != nil {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" || strings.EqualFold(part, "none") {
				continue
			}
			p.Acoustic.SecondaryFeatures = append(p.Acoustic.SecondaryFeatures, part)
		}
	}
	if m := explanationRe.FindStringSubmatch(block); m != nil {
		p.Description = strings.TrimSpace(m[1])
	}

	for _, m := range quoteRe.FindAllStringSubmatch(blockExampleRegion(block), -1) {
		quote := m[1]
		if quote == "" {
			quote = m[2]
		}
		seg, ok := loc.Locate(quote)
		if !ok {
			continue
		}
		p.Segments = append(p.Segments, seg)
	}

	if len(p.Segments) < observe.MinSegments || len(p.Segments) > observe.MaxSegments {
		return observe.Pattern{}, false
	}
	return p, true
}

// blockLabel pulls the free-text type label: a TYPE: field if present,
// otherwise the first non-empty line of the block.
func blockLabel(block string) string {
	if m := typeFieldRe.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Numbered-list blocks often run "Alliteration - repeated b sounds".
		if idx := strings.IndexAny(line, "-–:"); idx > 0 {
			line = line[:idx]
		}
		return strings.TrimSpace(line)
	}
	return ""
}

// blockExampleRegion keeps quote extraction away from the explanation, where
// the model tends to re-quote fragments it already listed.
func blockExampleRegion(block string) string {
	if m := explanationRe.FindStringIndex(block); m != nil {
		return block[:m[0]]
	}
	return block
}
