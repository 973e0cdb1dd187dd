package observe

import (
	"sort"
	"strings"
)

// labelTable maps normalized free-text labels from the model onto the
// canonical pattern types. Keys are lower-case with spaces.
var labelTable = map[string]PatternType{
	"rhyme":                TypeRhyme,
	"perfect rhyme":        TypeRhyme,
	"end rhyme":            TypeRhyme,
	"full rhyme":           TypeRhyme,
	"slant rhyme":          TypeSlantRhyme,
	"near rhyme":           TypeSlantRhyme,
	"half rhyme":           TypeSlantRhyme,
	"imperfect rhyme":      TypeSlantRhyme,
	"internal rhyme":       TypeInternalRhyme,
	"alliteration":         TypeAlliteration,
	"initial alliteration": TypeAlliteration,
	"assonance":            TypeAssonance,
	"vowel harmony":        TypeAssonance,
	"consonance":           TypeConsonance,
	"sibilance":            TypeSibilance,
	"rhythm":               TypeRhythm,
	"meter":                TypeRhythm,
	"cadence":              TypeRhythm,
	"rhythmic pattern":     TypeRhythm,
	"sound parallelism":    TypeSoundParallelism,
	"parallelism":          TypeSoundParallelism,
	"phonetic parallelism": TypeSoundParallelism,
	"code switching":       TypeCodeSwitching,
	"code-switching":       TypeCodeSwitching,
	"language mixing":      TypeCodeSwitching,
	"bilingual wordplay":   TypeCodeSwitching,
	"cultural resonance":   TypeCulturalResonance,
	"cultural reference":   TypeCulturalResonance,
	"cultural allusion":    TypeCulturalResonance,
	"emotional emphasis":   TypeEmotionalEmphasis,
	"emphasis":             TypeEmotionalEmphasis,
	"emotional intensity":  TypeEmotionalEmphasis,
}

// labelKeys holds the table keys longest-first so containment matching is
// deterministic and prefers the most specific label ("internal rhyme" before
// "rhyme").
var labelKeys = func() []string {
	keys := make([]string, 0, len(labelTable))
	for k := range labelTable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// MapLabel folds a free-text type label onto the canonical enumeration.
// Lookup order: exact table key, substring containment against table keys,
// then the generic sound_parallelism default. A block is never dropped solely
// for an unmapped label.
func MapLabel(label string) PatternType {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.Trim(norm, ".:")
	if norm == "" {
		return TypeSoundParallelism
	}

	if t, ok := labelTable[norm]; ok {
		return t
	}

	// Containment fallback: the model often wraps a known label in extra
	// words ("strong internal rhyme across lines").
	for _, key := range labelKeys {
		if strings.Contains(norm, key) || strings.Contains(key, norm) {
			return labelTable[key]
		}
	}

	return TypeSoundParallelism
}
