// Package prompt builds the instruction text sent to the external analysis
// model. Building is pure computation over (cleaned text, language, options).
package prompt

import (
	"fmt"
	"strings"
)

// BlockMarker is the literal marker each pattern block in the model's reply
// must begin with. The parser depends on it.
const BlockMarker = "PATTERN:"

// Sensitivity controls how inclusive the model should be about borderline
// patterns.
type Sensitivity string

const (
	SensitivitySubtle   Sensitivity = "subtle"
	SensitivityModerate Sensitivity = "moderate"
	SensitivityStrong   Sensitivity = "strong"
)

// Depth controls phonetic notation verbosity.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthDetailed Depth = "detailed"
	DepthExpert   Depth = "expert"
)

// Options are the caller-tunable analysis knobs.
type Options struct {
	Sensitivity     Sensitivity
	PhoneticDepth   Depth
	CulturalContext bool
}

// Normalize fills unset options with defaults.
func (o Options) Normalize() Options {
	if o.Sensitivity == "" {
		o.Sensitivity = SensitivityModerate
	}
	if o.PhoneticDepth == "" {
		o.PhoneticDepth = DepthBasic
	}
	return o
}

// SystemPrompt is the fixed system instruction for the analysis model.
const SystemPrompt = `You are a phonetic and linguistic pattern analyst. You detect sound patterns (rhyme, alliteration, assonance, rhythm), structural patterns, and cross-language phenomena in text. You respond only in the exact format requested, with no preamble and no commentary.`

// Build produces the user instruction block for one analysis call.
func Build(cleaned, language string, opts Options) string {
	opts = opts.Normalize()
	minPatterns, maxPatterns := targetRange(cleaned)

	var b strings.Builder

	fmt.Fprintf(&b, `Analyze the following %s text for phonetic and linguistic patterns.

Text:
---
%s
---

Report between %d and %d patterns. Your reply must begin with the literal marker %q and contain nothing except pattern blocks and the final analysis section.

Each pattern block has this exact form:
PATTERN: <pattern type>
EXAMPLES: "<exact fragment from the text>", "<exact fragment>", ...
FEATURE: <primary acoustic feature>
SECONDARY: <comma-separated secondary features, or none>
CONFIDENCE: <high|medium|low>
EXPLANATION: <one or two sentences>

Every EXAMPLES fragment must be quoted verbatim from the text above. Each pattern needs at least two fragments.

After the last pattern block, finish with:
RHYME SCHEME: <letter scheme such as ABAB, or none>
METER: <meter description, or none>
`, language, cleaned, minPatterns, maxPatterns, BlockMarker)

	if g, ok := languageGuidance[language]; ok {
		b.WriteString("\n")
		b.WriteString(g)
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
		b.WriteString(genericGuidance)
		b.WriteString("\n")
	}

	b.WriteString(sensitivityModifier(opts.Sensitivity))
	b.WriteString(depthModifier(opts.PhoneticDepth))

	if opts.CulturalContext {
		b.WriteString("Include cultural_resonance patterns where fragments carry cultural references, idioms, or tradition-specific phrasing, and explain the reference.\n")
	} else {
		b.WriteString("Do not report cultural references; confine the analysis to sound and structure.\n")
	}

	return b.String()
}

// targetRange derives the requested pattern-count range from text length and
// apparent poeticness. Short lines and clustered sentence-ending punctuation
// widen the range.
func targetRange(text string) (int, int) {
	min, max := 3, 6

	if len(text) > 400 {
		min, max = 4, 8
	}
	if len(text) > 1200 {
		min, max = 5, 10
	}

	if isPoetic(text) {
		max += 2
	}

	return min, max
}

// isPoetic detects verse-like structure: mostly short lines, or repeated
// sentence-ending punctuation clusters.
func isPoetic(text string) bool {
	lines := strings.Split(text, "\n")
	var nonEmpty, short int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if len(trimmed) < 60 {
			short++
		}
	}
	if nonEmpty >= 3 && short*2 > nonEmpty {
		return true
	}

	clusters := strings.Count(text, "...") + strings.Count(text, "!!") + strings.Count(text, "?!")
	return clusters >= 2
}

func sensitivityModifier(s Sensitivity) string {
	switch s {
	case SensitivitySubtle:
		return "Be inclusive: report borderline and faint patterns, marking them low confidence.\n"
	case SensitivityStrong:
		return "Be strict: report only clear, unambiguous patterns a trained reader would agree with.\n"
	default:
		return "Report patterns a careful reader would notice; skip the faintest cases.\n"
	}
}

func depthModifier(d Depth) string {
	switch d {
	case DepthDetailed:
		return "In FEATURE and SECONDARY, name the specific sounds involved (vowel qualities, consonant classes).\n"
	case DepthExpert:
		return "In FEATURE and SECONDARY, use precise phonetic notation (IPA where helpful) and name articulatory features.\n"
	default:
		return "Keep FEATURE and SECONDARY in plain descriptive terms.\n"
	}
}

// languageGuidance carries per-language-family conventions for the analysis.
// Overridable at construction time via Guidance().
var languageGuidance = map[string]string{
	"english":  `English guidance: weigh end rhyme and internal rhyme by stressed-vowel identity, not spelling. Alliteration follows initial consonant sounds (know/new do not alliterate with k-words). Sibilance covers s, sh, z clusters. Common schemes: AABB, ABAB, ABCB.`,
	"spanish":  `Spanish guidance: distinguish rima consonante (full match from the stressed vowel) from rima asonante (vowel-only match); report the latter as slant_rhyme. Syllable-timed rhythm: weigh syllable counts per line over stress feet.`,
	"french":   `French guidance: weigh rime riche and rime suffisante; final schwa elision affects rhyme position. Liaison can create alliterative chains across word boundaries.`,
	"german":   `German guidance: compound words carry internal stress patterns; treat Stabreim (stressed-syllable alliteration) as the alliteration convention. Final devoicing makes d/t and b/p rhyme pairs.`,
	"japanese": `Japanese guidance: rhyme is rare; prioritize mora counts (5-7-5 and related), sound symbolism (giongo/gitaigo), and repeated mora patterns. Report mora-count structure as rhythm.`,
	"chinese":  `Chinese guidance: weigh tone-pattern parallelism (ping/ze alternation) and final-vowel rhyme by rime category. Parallel couplets are sound_parallelism.`,
	"korean":   `Korean guidance: agglutinative endings create natural end-line echoes; distinguish deliberate rhyme from inflectional coincidence. Weigh syllable-block repetition and onomatopoeia.`,
}

const genericGuidance = `General guidance: judge rhyme by sound, not orthography. Treat recurring stress or syllable-count structure as rhythm. If the text mixes languages, report code_switching patterns anchored to the switch points.`

// Guidance returns the guidance text used for a language, falling back to the
// generic rules. Exposed for configuration overrides and tests.
func Guidance(language string) string {
	if g, ok := languageGuidance[language]; ok {
		return g
	}
	return genericGuidance
}

// SetGuidance replaces the guidance for a language. Called at startup when a
// YAML override file is configured; not safe for concurrent use afterwards.
func SetGuidance(language, text string) {
	languageGuidance[language] = text
}
