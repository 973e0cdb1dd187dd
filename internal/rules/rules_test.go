package rules

import (
	"testing"

	"github.com/verseworks/prosody/internal/observe"
)

func TestDetect_EndRhyme(t *testing.T) {
	text := "the moon hangs bright\nagainst the fading light"
	patterns := NewDetector().Detect(text, "english")

	var rhyme *observe.Pattern
	for i := range patterns {
		if patterns[i].Type == observe.TypeRhyme {
			rhyme = &patterns[i]
			break
		}
	}
	if rhyme == nil {
		t.Fatalf("no rhyme detected in %+v", patterns)
	}
	if len(rhyme.Segments) != 2 {
		t.Fatalf("rhyme segments = %d, want 2", len(rhyme.Segments))
	}
	if rhyme.Segments[0].Text != "bright" || rhyme.Segments[1].Text != "light" {
		t.Errorf("rhyme words = %q, %q", rhyme.Segments[0].Text, rhyme.Segments[1].Text)
	}
	for _, seg := range rhyme.Segments {
		if seg.Text != text[seg.StartIndex:seg.EndIndex] {
			t.Errorf("segment %q != text[%d:%d]", seg.Text, seg.StartIndex, seg.EndIndex)
		}
	}
}

func TestDetect_IdenticalWordsDoNotRhyme(t *testing.T) {
	text := "the rain\nmore rain"
	for _, p := range NewDetector().Detect(text, "english") {
		if p.Type == observe.TypeRhyme {
			t.Errorf("identical end words reported as rhyme: %+v", p)
		}
	}
}

func TestDetect_Alliteration(t *testing.T) {
	text := "big bold brave words here"
	patterns := NewDetector().Detect(text, "english")

	var allit *observe.Pattern
	for i := range patterns {
		if patterns[i].Type == observe.TypeAlliteration {
			allit = &patterns[i]
			break
		}
	}
	if allit == nil {
		t.Fatal("no alliteration detected")
	}
	if len(allit.Segments) != 3 {
		t.Fatalf("alliteration segments = %d, want 3", len(allit.Segments))
	}
	if allit.Segments[0].Text != "big" || allit.Segments[2].Text != "brave" {
		t.Errorf("unexpected run: %+v", allit.Segments)
	}
}

func TestDetect_NoFalsePositivesOnPlainText(t *testing.T) {
	text := "one two red blue"
	patterns := NewDetector().Detect(text, "english")
	if len(patterns) != 0 {
		t.Errorf("expected no patterns, got %+v", patterns)
	}
}

func TestDetect_SegmentBounds(t *testing.T) {
	text := "she sells seashells\nsurely something similar sings\nsoft sounds settle slowly south"
	for _, p := range NewDetector().Detect(text, "english") {
		if len(p.Segments) < observe.MinSegments || len(p.Segments) > observe.MaxSegments {
			t.Errorf("pattern %s has %d segments", p.Type, len(p.Segments))
		}
	}
}
