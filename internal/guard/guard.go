// Package guard shapes observations to fit an external document-size ceiling
// before persisting and caching them.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/verseworks/prosody/internal/cache"
	"github.com/verseworks/prosody/internal/observe"
)

// DocumentStore is the persistence collaborator. Add must reject documents
// over the store's byte ceiling with an error matching ErrTooLarge.
type DocumentStore interface {
	Add(ctx context.Context, obs *observe.Observation, contentKey string) error
}

// ErrTooLarge is the sentinel a document store reports for an oversized write.
var ErrTooLarge = errors.New("document exceeds size ceiling")

// Limits are the truncation caps applied in order as the observation is
// squeezed under the ceiling.
type Limits struct {
	CeilingBytes int
	// Progressive (patterns, constellations) caps tried in order.
	Steps []Step
	// MinimalPatterns caps the last-resort write, which keeps only patterns
	// carrying a description and no constellations.
	MinimalPatterns int
}

type Step struct {
	Patterns       int
	Constellations int
}

// DefaultLimits matches a 1 MiB document store ceiling.
func DefaultLimits() Limits {
	return Limits{
		CeilingBytes: 1 << 20,
		Steps: []Step{
			{Patterns: 30, Constellations: 8},
			{Patterns: 20, Constellations: 5},
			{Patterns: 10, Constellations: 3},
		},
		MinimalPatterns: 15,
	}
}

// Guard persists observations, truncating to respect the store ceiling, and
// writes sub-ceiling results to the cache.
type Guard struct {
	store  DocumentStore
	cache  cache.Store
	limits Limits
	logger *slog.Logger
}

func New(store DocumentStore, c cache.Store, limits Limits, logger *slog.Logger) *Guard {
	return &Guard{store: store, cache: c, limits: limits, logger: logger}
}

// Fit trims patterns and constellations until the serialized observation fits
// under ceiling. Pure: it never touches a store. The input observation is not
// modified; the (possibly trimmed) pattern and constellation slices are
// returned.
func Fit(obs *observe.Observation, limits Limits) ([]observe.Pattern, []observe.Constellation) {
	patterns, cons := obs.Patterns, obs.Constellations
	if measure(obs, patterns, cons) <= limits.CeilingBytes {
		return patterns, cons
	}

	for _, step := range limits.Steps {
		patterns = capPatterns(obs.Patterns, step.Patterns)
		cons = pruneConstellations(obs.Constellations, patterns)
		cons = capConstellations(cons, step.Constellations)
		if measure(obs, patterns, cons) <= limits.CeilingBytes {
			return patterns, cons
		}
	}

	return minimal(obs.Patterns, limits.MinimalPatterns), nil
}

// Persist writes the observation, reacting to size rejections with
// progressively harder truncation, and caches the final form when it is under
// the ceiling. The observation's pattern and constellation slices may be
// replaced by trimmed ones.
func (g *Guard) Persist(ctx context.Context, obs *observe.Observation, contentKey string) error {
	obs.Patterns, obs.Constellations = Fit(obs, g.limits)

	err := g.store.Add(ctx, obs, contentKey)
	if errors.Is(err, ErrTooLarge) {
		// The store measures differently than we do; take the next steps.
		g.logger.Warn("store rejected observation for size, truncating",
			"observation", obs.ID,
			"patterns", len(obs.Patterns),
		)
		obs.Patterns = minimal(obs.Patterns, g.limits.MinimalPatterns)
		obs.Constellations = nil
		err = g.store.Add(ctx, obs, contentKey)
	}
	if err != nil {
		return &observe.ObservationError{Stage: "persist", Err: err}
	}

	if measure(obs, obs.Patterns, obs.Constellations) <= g.limits.CeilingBytes {
		g.cache.Set(contentKey, obs)
	}
	return nil
}

// measure serializes the observation with candidate slices substituted.
func measure(obs *observe.Observation, patterns []observe.Pattern, cons []observe.Constellation) int {
	trial := *obs
	trial.Patterns = patterns
	trial.Constellations = cons
	data, err := json.Marshal(&trial)
	if err != nil {
		// Marshaling an observation cannot fail with these types; treat a
		// surprise as oversized so the guard keeps trimming.
		return 1 << 62
	}
	return len(data)
}

// capPatterns keeps the top n of an already-ordered pattern list.
func capPatterns(patterns []observe.Pattern, n int) []observe.Pattern {
	if len(patterns) <= n {
		return patterns
	}
	return patterns[:n]
}

func capConstellations(cons []observe.Constellation, n int) []observe.Constellation {
	if len(cons) <= n {
		return cons
	}
	return cons[:n]
}

// pruneConstellations drops member IDs whose patterns were truncated away
// and discards constellations left with fewer than two members, so a
// persisted document never references patterns it does not contain.
func pruneConstellations(cons []observe.Constellation, patterns []observe.Pattern) []observe.Constellation {
	kept := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		kept[p.ID] = true
	}

	var out []observe.Constellation
	for _, c := range cons {
		var ids []string
		for _, id := range c.PatternIDs {
			if kept[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 {
			continue
		}
		c.PatternIDs = ids
		out = append(out, c)
	}
	return out
}

// minimal keeps only described patterns, at most n of them.
func minimal(patterns []observe.Pattern, n int) []observe.Pattern {
	var out []observe.Pattern
	for _, p := range patterns {
		if p.Description == "" {
			continue
		}
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}
