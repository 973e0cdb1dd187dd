// Package rules is a deterministic pattern detector producing the same
// Pattern shape as the model-derived path. It is deliberately conservative:
// end-rhyme by suffix identity and alliteration by initial-letter runs. The
// pipeline treats it as a pure black-box producer.
package rules

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/verseworks/prosody/internal/observe"
)

// Detector finds rule-based patterns in text.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

type word struct {
	text  string
	start int
	end   int
}

// Detect returns rule-based patterns for the text. The language parameter is
// accepted for interface parity; the heuristics are script-agnostic.
func (d *Detector) Detect(text, language string) []observe.Pattern {
	var patterns []observe.Pattern
	patterns = append(patterns, endRhymes(text)...)
	patterns = append(patterns, alliterations(text)...)
	return patterns
}

// endRhymes groups lines whose final words share a 3-letter suffix.
func endRhymes(text string) []observe.Pattern {
	var finals []word
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		ws := splitWords(line, offset)
		if len(ws) > 0 {
			finals = append(finals, ws[len(ws)-1])
		}
		offset += len(line) + 1
	}

	bySuffix := make(map[string][]word)
	var order []string
	for _, w := range finals {
		lower := strings.ToLower(w.text)
		if len(lower) < 3 {
			continue
		}
		suffix := lower[len(lower)-3:]
		if _, ok := bySuffix[suffix]; !ok {
			order = append(order, suffix)
		}
		bySuffix[suffix] = append(bySuffix[suffix], w)
	}

	var patterns []observe.Pattern
	for _, suffix := range order {
		group := bySuffix[suffix]
		if len(group) < observe.MinSegments || len(group) > observe.MaxSegments {
			continue
		}
		// Identical words echo, they don't rhyme.
		distinct := make(map[string]bool)
		for _, w := range group {
			distinct[strings.ToLower(w.text)] = true
		}
		if len(distinct) < 2 {
			continue
		}
		patterns = append(patterns, observe.Pattern{
			ID:         uuid.NewString(),
			Type:       observe.TypeRhyme,
			Confidence: observe.ConfidenceMedium,
			Segments:   segments(group),
			Acoustic:   observe.AcousticFeatures{PrimaryFeature: "line-final " + suffix},
		})
	}
	return patterns
}

// alliterations finds runs of 2+ consecutive words in a line sharing an
// initial letter.
func alliterations(text string) []observe.Pattern {
	var patterns []observe.Pattern
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		ws := splitWords(line, offset)
		offset += len(line) + 1

		i := 0
		for i < len(ws) {
			j := i + 1
			for j < len(ws) && initial(ws[j].text) == initial(ws[i].text) && initial(ws[i].text) != 0 {
				j++
			}
			run := ws[i:j]
			if len(run) >= observe.MinSegments && len(run) <= observe.MaxSegments {
				patterns = append(patterns, observe.Pattern{
					ID:         uuid.NewString(),
					Type:       observe.TypeAlliteration,
					Confidence: observe.ConfidenceMedium,
					Segments:   segments(run),
					Acoustic:   observe.AcousticFeatures{PrimaryFeature: "initial " + string(initial(run[0].text))},
				})
			}
			i = j
		}
	}
	return patterns
}

func segments(ws []word) []observe.Segment {
	out := make([]observe.Segment, len(ws))
	for i, w := range ws {
		out[i] = observe.Segment{Text: w.text, StartIndex: w.start, EndIndex: w.end}
	}
	return out
}

func initial(s string) rune {
	for _, r := range s {
		return unicode.ToLower(r)
	}
	return 0
}

// splitWords returns the letter runs of line with offsets shifted by base.
func splitWords(line string, base int) []word {
	var out []word
	start := -1
	for i, r := range line {
		if unicode.IsLetter(r) || r == '\'' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, word{text: line[start:i], start: base + start, end: base + i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, word{text: line[start:], start: base + start, end: base + len(line)})
	}
	return out
}
