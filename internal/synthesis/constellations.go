package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/verseworks/prosody/internal/observe"
)

// ConstellationConfig carries the tuned grouping constants.
type ConstellationConfig struct {
	ProximityChars    int // segment starts within this distance count as related
	MaxConstellations int
}

// DefaultConstellationConfig preserves the tuned constants.
func DefaultConstellationConfig() ConstellationConfig {
	return ConstellationConfig{
		ProximityChars:    50,
		MaxConstellations: 10,
	}
}

// BuildConstellations groups the synthesized pattern list into labeled
// relationship sets:
//
//   - every pattern type with >=2 members becomes one constellation
//   - every pattern with >=2 proximity- or feature-related neighbors anchors
//     one "mixed" constellation
//
// The result is capped at cfg.MaxConstellations, keeping the largest.
func BuildConstellations(patterns []observe.Pattern, cfg ConstellationConfig) []observe.Constellation {
	var out []observe.Constellation
	seen := make(map[string]bool)

	// Type groups, in first-appearance order.
	byType := make(map[observe.PatternType][]string)
	var typeOrder []observe.PatternType
	for _, p := range patterns {
		if _, ok := byType[p.Type]; !ok {
			typeOrder = append(typeOrder, p.Type)
		}
		byType[p.Type] = append(byType[p.Type], p.ID)
	}
	for _, t := range typeOrder {
		ids := byType[t]
		if len(ids) < 2 {
			continue
		}
		c := observe.Constellation{
			Name:         fmt.Sprintf("%s cluster", t),
			Relationship: fmt.Sprintf("%d patterns sharing the %s type", len(ids), t),
			PatternIDs:   ids,
		}
		out = append(out, c)
		seen[memberKey(c.PatternIDs)] = true
	}

	// Mixed groups: anchor plus its proximity/feature relations.
	for _, anchor := range patterns {
		var related []string
		for _, other := range patterns {
			if other.ID == anchor.ID {
				continue
			}
			if relatedPatterns(anchor, other, cfg.ProximityChars) {
				related = append(related, other.ID)
			}
		}
		if len(related) < 2 {
			continue
		}
		members := append([]string{anchor.ID}, related...)
		key := memberKey(members)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, observe.Constellation{
			Name:         fmt.Sprintf("mixed resonance around %s", anchor.Type),
			Relationship: "patterns overlapping in position or acoustic feature",
			PatternIDs:   members,
		})
	}

	if len(out) > cfg.MaxConstellations {
		sort.SliceStable(out, func(i, j int) bool {
			return len(out[i].PatternIDs) > len(out[j].PatternIDs)
		})
		out = out[:cfg.MaxConstellations]
	}
	return out
}

// relatedPatterns reports whether two patterns are related: any segment of b
// starts within proximity chars of a segment of a, or they share an acoustic
// feature string.
func relatedPatterns(a, b observe.Pattern, proximity int) bool {
	for _, sa := range a.Segments {
		for _, sb := range b.Segments {
			d := sa.StartIndex - sb.StartIndex
			if d < 0 {
				d = -d
			}
			if d <= proximity {
				return true
			}
		}
	}
	return shareFeature(a.Acoustic, b.Acoustic)
}

func shareFeature(a, b observe.AcousticFeatures) bool {
	features := func(f observe.AcousticFeatures) []string {
		var out []string
		if f.PrimaryFeature != "" {
			out = append(out, strings.ToLower(f.PrimaryFeature))
		}
		for _, s := range f.SecondaryFeatures {
			if s != "" {
				out = append(out, strings.ToLower(s))
			}
		}
		return out
	}

	fa := features(a)
	for _, fb := range features(b) {
		for _, v := range fa {
			if v == fb {
				return true
			}
		}
	}
	return false
}

// memberKey builds an order-insensitive signature for a member set so
// duplicate constellations collapse.
func memberKey(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
