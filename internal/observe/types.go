package observe

import "time"

// Confidence is the three-level certainty attached to a pattern.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceRank returns a numeric priority for ordering (high > medium > low).
func ConfidenceRank(c Confidence) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// PatternType is the canonical closed set of pattern categories. The model
// emits free-text labels; MapLabel folds them onto this set.
type PatternType string

const (
	TypeRhyme             PatternType = "rhyme"
	TypeSlantRhyme        PatternType = "slant_rhyme"
	TypeInternalRhyme     PatternType = "internal_rhyme"
	TypeAlliteration      PatternType = "alliteration"
	TypeAssonance         PatternType = "assonance"
	TypeConsonance        PatternType = "consonance"
	TypeSibilance         PatternType = "sibilance"
	TypeRhythm            PatternType = "rhythm"
	TypeSoundParallelism  PatternType = "sound_parallelism"
	TypeCodeSwitching     PatternType = "code_switching"
	TypeCulturalResonance PatternType = "cultural_resonance"
	TypeEmotionalEmphasis PatternType = "emotional_emphasis"
)

// Segment is a located span of the original (uncleaned) text.
// Invariant: EndIndex > StartIndex and Text == original[StartIndex:EndIndex].
type Segment struct {
	Text       string `json:"text"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// AcousticFeatures is free-text phonetic annotation, not structurally validated.
type AcousticFeatures struct {
	PrimaryFeature    string   `json:"primary_feature"`
	SecondaryFeatures []string `json:"secondary_features,omitempty"`
}

// Pattern is a detected phenomenon anchored to 2..8 text spans.
type Pattern struct {
	ID          string           `json:"id"`
	Type        PatternType      `json:"type"`
	Segments    []Segment        `json:"segments"`
	Confidence  Confidence       `json:"confidence"`
	Description string           `json:"description,omitempty"`
	Acoustic    AcousticFeatures `json:"acoustic_features"`
}

const (
	// MinSegments and MaxSegments bound how many spans a pattern may anchor;
	// outside the range the candidate is rejected as noise.
	MinSegments = 2
	MaxSegments = 8
)

// Constellation is a relationship grouping of >=2 patterns. It references
// patterns by ID; patterns outlive their constellation membership.
type Constellation struct {
	Name         string   `json:"name"`
	Relationship string   `json:"relationship"`
	PatternIDs   []string `json:"pattern_ids"`
}

// CleaningStats records what normalization did to the input.
type CleaningStats struct {
	WasModified    bool `json:"was_modified"`
	OriginalLength int  `json:"original_length"`
	CleanedLength  int  `json:"cleaned_length"`
}

// Metadata carries per-observation analysis context.
type Metadata struct {
	ModelUsed   string        `json:"model_used"`
	RhymeScheme string        `json:"rhyme_scheme,omitempty"`
	Meter       string        `json:"meter,omitempty"`
	Cleaning    CleaningStats `json:"cleaning"`
}

// Observation is the unit returned and persisted: one successful pipeline run.
// Never mutated after creation except by the persistence guard's pre-write
// truncation.
type Observation struct {
	ID             string          `json:"id"`
	Text           string          `json:"text"`
	Language       string          `json:"language"`
	Patterns       []Pattern       `json:"patterns"`
	Constellations []Constellation `json:"constellations"`
	Metadata       Metadata        `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Result is the caller-facing envelope around an observation.
type Result struct {
	Observation *Observation `json:"observation"`
	ModelUsed   string       `json:"model_used"`
	TokensUsed  int          `json:"tokens_used"`
	CostUSD     float64      `json:"cost_usd"`
	Cached      bool         `json:"cached"`
}
