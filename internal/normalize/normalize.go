// Package normalize strips structural and metadata markup from input text
// while preserving every substantive word, so character offsets computed
// against the original text stay resolvable.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// Metadata header lines like "Title: ..." or "artist: ...".
	metadataLine = regexp.MustCompile(`(?i)^\s*(title|artist|album|song|track|writer|written by|producer|produced by|composer|lyrics|genre|year|key|bpm)\s*:.*$`)

	// Bracketed structural tags, timestamp tags, and performer tags:
	// [Verse 1], [Chorus: Artist], [00:42], {Bridge}, (Verse 2).
	bracketTag   = regexp.MustCompile(`\[[^\[\]\n]*\]|\{[^{}\n]*\}`)
	parenSection = regexp.MustCompile(`(?i)\(\s*(intro|outro|verse|chorus|pre-chorus|bridge|hook|refrain|interlude|instrumental|solo)[^()\n]*\)`)

	// Repetition shorthand: (x2), (2x), x3 at end of line.
	repeatTag = regexp.MustCompile(`(?i)\(\s*(x\s*\d+|\d+\s*x)\s*\)|\bx\d+\s*$`)

	// Short interjection ad-libs: (yeah), (ooh), (uh-huh).
	adLib = regexp.MustCompile(`(?i)\(\s*(yeah|yea|oh+|ooh+|uh+(-huh)?|ah+|aah+|hey|huh|woo+|whoa|mm+|hmm+|la(\s*la)*|na(\s*na)*)\s*[!.]?\s*\)`)
)

// Result reports the cleaned text and what cleaning did.
type Result struct {
	Cleaned        string
	WasModified    bool
	OriginalLength int
	CleanedLength  int
}

// Clean applies the normalization rules in order: metadata lines, structural
// markers (standalone and inline), repetition shorthand and ad-libs, blank
// line collapsing, whitespace trimming. It never reorders or deletes
// substantive words.
func Clean(text string) Result {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if metadataLine.MatchString(line) {
			continue
		}

		cleaned := bracketTag.ReplaceAllString(line, "")
		cleaned = parenSection.ReplaceAllString(cleaned, "")
		cleaned = repeatTag.ReplaceAllString(cleaned, "")
		cleaned = adLib.ReplaceAllString(cleaned, "")
		cleaned = strings.Trim(cleaned, " \t")

		// A line that held only markup vanishes entirely rather than
		// leaving a stray blank.
		if strings.TrimSpace(cleaned) == "" && strings.TrimSpace(line) != "" {
			continue
		}

		out = append(out, cleaned)
	}

	joined := strings.Join(out, "\n")
	joined = collapseBlankRuns(joined)
	joined = strings.TrimSpace(joined)

	return Result{
		Cleaned:        joined,
		WasModified:    joined != text,
		OriginalLength: len(text),
		CleanedLength:  len(joined),
	}
}

var blankRun = regexp.MustCompile(`\n([ \t]*\n){3,}`)

// collapseBlankRuns reduces runs of 3+ blank lines to exactly one blank line.
func collapseBlankRuns(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}
