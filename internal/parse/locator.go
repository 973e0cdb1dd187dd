package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/verseworks/prosody/internal/observe"
)

// Locator maps quoted example fragments from the model's reply onto concrete
// spans in the original text. A monotonically advancing cursor biases later
// matches forward so repeated phrases don't all anchor to the first
// occurrence. Matching tiers, first success wins:
//
//  1. case-insensitive exact substring match of the full quote
//  2. word-by-word fallback: first single word of the quote found verbatim
//  3. fuzzy containment: a word of the text containing, or contained by,
//     the quote
//
// The returned segment's text is always copied from the original text at the
// matched offsets, never from the model's quotation.
type Locator struct {
	original string
	lowered  string
	// toOrig maps every byte offset of lowered (including the end offset)
	// back to a byte offset of original. Lowercasing can change a rune's
	// UTF-8 length, so offsets found in lowered are never valid in the
	// original directly.
	toOrig []int
	cursor int
}

func NewLocator(original string) *Locator {
	var b strings.Builder
	b.Grow(len(original))
	toOrig := make([]int, 0, len(original)+1)
	for i, r := range original {
		lr := unicode.ToLower(r)
		for n := utf8.RuneLen(lr); n > 0; n-- {
			toOrig = append(toOrig, i)
		}
		b.WriteRune(lr)
	}
	toOrig = append(toOrig, len(original))

	return &Locator{
		original: original,
		lowered:  b.String(),
		toOrig:   toOrig,
	}
}

// lowerRunes folds rune by rune, matching how the locator lowers the
// original, so quote and text agree on every fold.
func lowerRunes(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// Cursor reports the current search offset in the original text (the end of
// the last located segment).
func (l *Locator) Cursor() int {
	return l.toOrig[l.cursor]
}

// Locate resolves one quoted fragment to a segment, advancing the cursor on
// success.
func (l *Locator) Locate(quote string) (observe.Segment, bool) {
	q := lowerRunes(strings.TrimSpace(quote))
	q = strings.Trim(q, `"“”'`)
	if q == "" {
		return observe.Segment{}, false
	}

	if start, ok := l.find(q); ok {
		return l.take(start, start+len(q)), true
	}

	for _, w := range strings.Fields(q) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w == "" {
			continue
		}
		if start, ok := l.find(w); ok {
			return l.take(start, start+len(w)), true
		}
	}

	if start, end, ok := l.fuzzyWord(q); ok {
		return l.take(start, end), true
	}

	return observe.Segment{}, false
}

// find searches the lowered text for q, from the cursor first, then from the
// beginning. Offsets are in lowered space.
func (l *Locator) find(q string) (int, bool) {
	if l.cursor < len(l.lowered) {
		if idx := strings.Index(l.lowered[l.cursor:], q); idx >= 0 {
			return l.cursor + idx, true
		}
	}
	if idx := strings.Index(l.lowered, q); idx >= 0 {
		return idx, true
	}
	return 0, false
}

// fuzzyWord scans the text's own words and accepts one that contains the
// quote or is contained by it. Scan starts at the cursor and wraps.
func (l *Locator) fuzzyWord(q string) (int, int, bool) {
	var fallback [2]int
	var haveFallback bool

	forEachWord(l.lowered, func(start, end int) bool {
		w := l.lowered[start:end]
		if len(w) < 2 {
			return true
		}
		if !strings.Contains(w, q) && !strings.Contains(q, w) {
			return true
		}
		if start >= l.cursor {
			fallback = [2]int{start, end}
			haveFallback = true
			return false
		}
		if !haveFallback {
			fallback = [2]int{start, end}
			haveFallback = true
		}
		return true
	})

	if haveFallback {
		return fallback[0], fallback[1], true
	}
	return 0, 0, false
}

// take maps lowered-space offsets back to the original, copies the segment
// text out of the original, and advances the cursor.
func (l *Locator) take(start, end int) observe.Segment {
	l.cursor = end
	origStart, origEnd := l.toOrig[start], l.toOrig[end]
	return observe.Segment{
		Text:       l.original[origStart:origEnd],
		StartIndex: origStart,
		EndIndex:   origEnd,
	}
}

// forEachWord walks letter/digit runs in s, calling fn with each run's byte
// offsets until fn returns false.
func forEachWord(s string, fn func(start, end int) bool) {
	start := -1
	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if !fn(start, i) {
				return
			}
			start = -1
		}
	}
	if start >= 0 {
		fn(start, len(s))
	}
}
