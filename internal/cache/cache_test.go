package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/verseworks/prosody/internal/observe"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("she sells seashells", "english")
	b := Key("she sells seashells", "english")
	if a != b {
		t.Errorf("same input produced different keys: %q vs %q", a, b)
	}

	if Key("she sells seashells", "spanish") == a {
		t.Error("language must be part of the key")
	}
	if Key("other text", "english") == a {
		t.Error("text must be part of the key")
	}
	if !strings.HasSuffix(a, ":english") {
		t.Errorf("key %q should end with the language tag", a)
	}
}

func TestLRU_RoundTrip(t *testing.T) {
	c := NewLRU(10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("unexpected hit on empty cache")
	}

	obs := &observe.Observation{ID: "obs-1", Language: "english"}
	c.Set("k", obs)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.ID != "obs-1" {
		t.Errorf("got %q", got.ID)
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU(2, time.Minute)
	c.Set("a", &observe.Observation{ID: "a"})
	c.Set("b", &observe.Observation{ID: "b"})
	c.Set("c", &observe.Observation{ID: "c"})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should be present")
	}
}
