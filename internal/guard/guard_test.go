package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/verseworks/prosody/internal/observe"
)

func bigObservation(patterns, constellations int) *observe.Observation {
	obs := &observe.Observation{
		ID:       "obs-1",
		Text:     "original text",
		Language: "english",
	}
	for i := 0; i < patterns; i++ {
		obs.Patterns = append(obs.Patterns, observe.Pattern{
			ID:          fmt.Sprintf("p-%d", i),
			Type:        observe.TypeRhyme,
			Confidence:  observe.ConfidenceHigh,
			Description: strings.Repeat("explanatory prose ", 40),
			Segments: []observe.Segment{
				{Text: "sky", StartIndex: 0, EndIndex: 3},
				{Text: "high", StartIndex: 4, EndIndex: 8},
			},
		})
	}
	for i := 0; i < constellations; i++ {
		obs.Constellations = append(obs.Constellations, observe.Constellation{
			Name:         fmt.Sprintf("c-%d", i),
			Relationship: strings.Repeat("relationship ", 20),
			PatternIDs:   []string{"p-0", "p-1"},
		})
	}
	return obs
}

func serializedSize(t *testing.T, obs *observe.Observation) int {
	t.Helper()
	data, err := json.Marshal(obs)
	if err != nil {
		t.Fatal(err)
	}
	return len(data)
}

func TestFit_UnderCeilingUntouched(t *testing.T) {
	obs := bigObservation(3, 1)
	limits := DefaultLimits()

	patterns, cons := Fit(obs, limits)
	if len(patterns) != 3 || len(cons) != 1 {
		t.Errorf("under-ceiling observation was trimmed: %d patterns, %d constellations", len(patterns), len(cons))
	}
}

func TestFit_SizeBound(t *testing.T) {
	obs := bigObservation(100, 20)
	limits := DefaultLimits()
	limits.CeilingBytes = 20000

	if serializedSize(t, obs) <= limits.CeilingBytes {
		t.Fatal("test observation should start over the ceiling")
	}

	obs.Patterns, obs.Constellations = Fit(obs, limits)
	if got := serializedSize(t, obs); got > limits.CeilingBytes {
		t.Errorf("after Fit, size %d still exceeds ceiling %d", got, limits.CeilingBytes)
	}
}

func TestFit_DropsDanglingConstellationMembers(t *testing.T) {
	obs := bigObservation(100, 0)
	obs.Constellations = []observe.Constellation{
		{Name: "kept", Relationship: "rhyme group", PatternIDs: []string{"p-0", "p-1", "p-95"}},
		{Name: "dropped", Relationship: "rhyme group", PatternIDs: []string{"p-95", "p-96"}},
	}
	limits := DefaultLimits()
	limits.CeilingBytes = 20000

	patterns, cons := Fit(obs, limits)
	if len(patterns) >= 95 {
		t.Fatal("expected truncation to drop the high-numbered patterns")
	}

	kept := make(map[string]bool)
	for _, p := range patterns {
		kept[p.ID] = true
	}
	for _, c := range cons {
		if len(c.PatternIDs) < 2 {
			t.Errorf("constellation %q left with %d members", c.Name, len(c.PatternIDs))
		}
		for _, id := range c.PatternIDs {
			if !kept[id] {
				t.Errorf("constellation %q references truncated pattern %q", c.Name, id)
			}
		}
	}
	for _, c := range cons {
		if c.Name == "dropped" {
			t.Error("constellation with no surviving member pair should be dropped")
		}
	}
}

func TestFit_LastResortKeepsDescribedOnly(t *testing.T) {
	obs := bigObservation(100, 20)
	// Half the patterns carry no description.
	for i := range obs.Patterns {
		if i%2 == 1 {
			obs.Patterns[i].Description = ""
		}
	}
	limits := DefaultLimits()
	limits.CeilingBytes = 9000
	limits.Steps = []Step{{Patterns: 90, Constellations: 15}} // steps that cannot fit

	patterns, cons := Fit(obs, limits)
	if len(cons) != 0 {
		t.Errorf("last resort should drop all constellations, kept %d", len(cons))
	}
	if len(patterns) > limits.MinimalPatterns {
		t.Errorf("last resort kept %d patterns, cap is %d", len(patterns), limits.MinimalPatterns)
	}
	for _, p := range patterns {
		if p.Description == "" {
			t.Error("last resort kept a description-less pattern")
		}
	}
}

type fakeStore struct {
	rejections int
	writes     []*observe.Observation
}

func (f *fakeStore) Add(ctx context.Context, obs *observe.Observation, key string) error {
	if f.rejections > 0 {
		f.rejections--
		return ErrTooLarge
	}
	f.writes = append(f.writes, obs)
	return nil
}

type fakeCache struct {
	entries map[string]*observe.Observation
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*observe.Observation)}
}

func (f *fakeCache) Get(key string) (*observe.Observation, bool) {
	obs, ok := f.entries[key]
	return obs, ok
}

func (f *fakeCache) Set(key string, obs *observe.Observation) {
	f.entries[key] = obs
}

func TestPersist_SuccessCaches(t *testing.T) {
	store := &fakeStore{}
	c := newFakeCache()
	g := New(store, c, DefaultLimits(), slog.Default())

	obs := bigObservation(3, 1)
	if err := g.Persist(context.Background(), obs, "key-1"); err != nil {
		t.Fatal(err)
	}
	if len(store.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(store.writes))
	}
	if _, ok := c.Get("key-1"); !ok {
		t.Error("successful sub-ceiling write should be cached")
	}
}

func TestPersist_StoreRejectionTriggersMinimalWrite(t *testing.T) {
	store := &fakeStore{rejections: 1}
	c := newFakeCache()
	g := New(store, c, DefaultLimits(), slog.Default())

	obs := bigObservation(10, 3)
	if err := g.Persist(context.Background(), obs, "key-1"); err != nil {
		t.Fatal(err)
	}
	if len(store.writes) != 1 {
		t.Fatalf("expected the retry write, got %d", len(store.writes))
	}
	written := store.writes[0]
	if len(written.Constellations) != 0 {
		t.Errorf("minimal write kept %d constellations", len(written.Constellations))
	}
	for _, p := range written.Patterns {
		if p.Description == "" {
			t.Error("minimal write kept a description-less pattern")
		}
	}
}

func TestPersist_SecondRejectionFails(t *testing.T) {
	store := &fakeStore{rejections: 2}
	g := New(store, newFakeCache(), DefaultLimits(), slog.Default())

	err := g.Persist(context.Background(), bigObservation(10, 3), "key-1")
	if err == nil {
		t.Fatal("expected error after repeated rejection")
	}
	var obsErr *observe.ObservationError
	if !errors.As(err, &obsErr) {
		t.Errorf("expected ObservationError, got %T", err)
	}
}
