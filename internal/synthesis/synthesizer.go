// Package synthesis merges model-derived patterns with rule-based patterns,
// removing near-duplicates, and groups the survivors into constellations.
package synthesis

import (
	"sort"
	"strings"

	"github.com/verseworks/prosody/internal/observe"
)

// DefaultOverlapThreshold is the tuned dedup cutoff: a rule-based pattern
// overlapping an existing same-type pattern at or above this fraction is
// discarded as a duplicate.
const DefaultOverlapThreshold = 0.5

// Merge combines AI-derived patterns with rule-based ones. The AI list is the
// base: it carries explanations and is considered higher quality. Each
// rule-based pattern is appended only when no same-type AI pattern overlaps
// it at or above threshold; appended patterns are tagged medium confidence
// with no explanation.
//
// Final order: patterns with a description first, then by confidence, then by
// segment count. This is the same ordering contract as the parser, applied
// across both sources.
func Merge(ai, ruleBased []observe.Pattern, threshold float64) []observe.Pattern {
	merged := make([]observe.Pattern, len(ai))
	copy(merged, ai)

	for _, rb := range ruleBased {
		duplicate := false
		for _, existing := range merged {
			if existing.Type != rb.Type {
				continue
			}
			if overlap(existing, rb) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		rb.Confidence = observe.ConfidenceMedium
		rb.Description = ""
		merged = append(merged, rb)
	}

	Order(merged)
	return merged
}

// Order sorts a merged pattern list: described patterns first, then by
// confidence (high first), then by segment count (more first). Stable.
func Order(patterns []observe.Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		di, dj := patterns[i].Description != "", patterns[j].Description != ""
		if di != dj {
			return di
		}
		ci, cj := observe.ConfidenceRank(patterns[i].Confidence), observe.ConfidenceRank(patterns[j].Confidence)
		if ci != cj {
			return ci > cj
		}
		return len(patterns[i].Segments) > len(patterns[j].Segments)
	})
}

// overlap measures how many of two patterns' segment texts coincide
// (case-insensitive equality or mutual containment), normalized by the
// smaller pattern's segment count.
func overlap(a, b observe.Pattern) float64 {
	if len(a.Segments) == 0 || len(b.Segments) == 0 {
		return 0
	}

	var shared int
	for _, sa := range a.Segments {
		for _, sb := range b.Segments {
			if textsCoincide(sa.Text, sb.Text) {
				shared++
				break
			}
		}
	}

	min := len(a.Segments)
	if len(b.Segments) < min {
		min = len(b.Segments)
	}
	return float64(shared) / float64(min)
}

func textsCoincide(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
