// Package cache provides the content-hash-keyed observation cache. Eviction
// and TTL policy belong to the cache implementation; the pipeline only reads
// and writes by key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/verseworks/prosody/internal/observe"
)

// Key builds the cache key for a cleaned text and language: a deterministic
// digest of the normalized input plus the language tag.
func Key(cleanedText, language string) string {
	sum := sha256.Sum256([]byte(cleanedText))
	return hex.EncodeToString(sum[:]) + ":" + language
}

// Store is what the pipeline needs from a cache backend.
type Store interface {
	Get(key string) (*observe.Observation, bool)
	Set(key string, obs *observe.Observation)
}

// LRU is an in-process expirable LRU cache store, constructed once per
// process and shared across concurrent pipeline invocations.
type LRU struct {
	inner *expirable.LRU[string, *observe.Observation]
}

// NewLRU builds a cache holding up to size observations for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{
		inner: expirable.NewLRU[string, *observe.Observation](size, nil, ttl),
	}
}

func (c *LRU) Get(key string) (*observe.Observation, bool) {
	return c.inner.Get(key)
}

func (c *LRU) Set(key string, obs *observe.Observation) {
	c.inner.Add(key, obs)
}
