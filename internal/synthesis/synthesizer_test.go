package synthesis

import (
	"testing"

	"github.com/verseworks/prosody/internal/observe"
)

func pattern(id string, t observe.PatternType, conf observe.Confidence, desc string, texts ...string) observe.Pattern {
	p := observe.Pattern{ID: id, Type: t, Confidence: conf, Description: desc}
	offset := 0
	for _, txt := range texts {
		p.Segments = append(p.Segments, observe.Segment{
			Text:       txt,
			StartIndex: offset,
			EndIndex:   offset + len(txt),
		})
		offset += len(txt) + 1
	}
	return p
}

func TestMerge_ExactDuplicateDiscarded(t *testing.T) {
	ai := []observe.Pattern{
		pattern("ai-1", observe.TypeRhyme, observe.ConfidenceHigh, "sky/high end rhyme", "sky", "high"),
	}
	rb := []observe.Pattern{
		pattern("rb-1", observe.TypeRhyme, observe.ConfidenceHigh, "", "sky", "high"),
	}

	merged := Merge(ai, rb, DefaultOverlapThreshold)
	if len(merged) != 1 {
		t.Fatalf("expected exactly one rhyme pattern after merge, got %d", len(merged))
	}
	if merged[0].ID != "ai-1" {
		t.Errorf("the AI pattern should survive, got %q", merged[0].ID)
	}
}

func TestMerge_DisjointPatternsBothSurvive(t *testing.T) {
	ai := []observe.Pattern{
		pattern("ai-1", observe.TypeAlliteration, observe.ConfidenceHigh, "b alliteration", "big", "bold"),
	}
	rb := []observe.Pattern{
		pattern("rb-1", observe.TypeAlliteration, observe.ConfidenceLow, "", "cat", "car"),
	}

	merged := Merge(ai, rb, DefaultOverlapThreshold)
	if len(merged) != 2 {
		t.Fatalf("disjoint patterns must both survive, got %d", len(merged))
	}
}

func TestMerge_DifferentTypeNeverDeduped(t *testing.T) {
	ai := []observe.Pattern{
		pattern("ai-1", observe.TypeRhyme, observe.ConfidenceHigh, "rhyme", "sky", "high"),
	}
	rb := []observe.Pattern{
		pattern("rb-1", observe.TypeAssonance, observe.ConfidenceHigh, "", "sky", "high"),
	}

	merged := Merge(ai, rb, DefaultOverlapThreshold)
	if len(merged) != 2 {
		t.Fatalf("same segments under different types must both survive, got %d", len(merged))
	}
}

func TestMerge_PartialOverlapBelowThreshold(t *testing.T) {
	ai := []observe.Pattern{
		pattern("ai-1", observe.TypeRhyme, observe.ConfidenceHigh, "d", "night", "light", "bright", "sight"),
	}
	// 1 of 3 segments coincides: overlap 1/3 < 0.5.
	rb := []observe.Pattern{
		pattern("rb-1", observe.TypeRhyme, observe.ConfidenceHigh, "", "night", "moon", "june"),
	}

	merged := Merge(ai, rb, DefaultOverlapThreshold)
	if len(merged) != 2 {
		t.Fatalf("overlap below threshold must survive, got %d", len(merged))
	}
}

func TestMerge_ContainmentCountsAsCoincidence(t *testing.T) {
	ai := []observe.Pattern{
		pattern("ai-1", observe.TypeRhyme, observe.ConfidenceHigh, "d", "the seashore", "seashells"),
	}
	// "seashore" is contained by "the seashore": 2/2 coincide.
	rb := []observe.Pattern{
		pattern("rb-1", observe.TypeRhyme, observe.ConfidenceHigh, "", "seashore", "seashells"),
	}

	merged := Merge(ai, rb, DefaultOverlapThreshold)
	if len(merged) != 1 {
		t.Fatalf("mutual containment should dedup, got %d", len(merged))
	}
}

func TestMerge_RuleBasedTaggedMediumNoDescription(t *testing.T) {
	rb := []observe.Pattern{
		pattern("rb-1", observe.TypeAlliteration, observe.ConfidenceHigh, "rule description", "cat", "car"),
	}

	merged := Merge(nil, rb, DefaultOverlapThreshold)
	if len(merged) != 1 {
		t.Fatal("rule-based pattern should be appended")
	}
	if merged[0].Confidence != observe.ConfidenceMedium {
		t.Errorf("appended rule pattern Confidence = %q, want medium", merged[0].Confidence)
	}
	if merged[0].Description != "" {
		t.Errorf("appended rule pattern Description = %q, want empty", merged[0].Description)
	}
}

func TestMerge_OrderingContract(t *testing.T) {
	ai := []observe.Pattern{
		pattern("no-desc-high", observe.TypeRhyme, observe.ConfidenceHigh, "", "sky", "high"),
		pattern("desc-medium", observe.TypeAssonance, observe.ConfidenceMedium, "explained", "rain", "train"),
		pattern("desc-high", observe.TypeSibilance, observe.ConfidenceHigh, "explained", "she", "sells", "seashells"),
	}
	rb := []observe.Pattern{
		pattern("rule", observe.TypeConsonance, observe.ConfidenceLow, "", "black", "block"),
	}

	merged := Merge(ai, rb, DefaultOverlapThreshold)
	want := []string{"desc-high", "desc-medium", "no-desc-high", "rule"}
	if len(merged) != len(want) {
		t.Fatalf("got %d patterns", len(merged))
	}
	for i, id := range want {
		if merged[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, merged[i].ID, id)
		}
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	ai := []observe.Pattern{
		pattern("ai-1", observe.TypeRhyme, observe.ConfidenceLow, "", "sky", "high"),
		pattern("ai-2", observe.TypeRhyme, observe.ConfidenceHigh, "d", "moon", "june"),
	}
	Merge(ai, nil, DefaultOverlapThreshold)
	if ai[0].ID != "ai-1" || ai[1].ID != "ai-2" {
		t.Error("Merge reordered the caller's slice")
	}
}
