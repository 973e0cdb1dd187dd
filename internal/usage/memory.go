package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryWindowStore is an in-process WindowStore. Safe for concurrent use.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{entries: make(map[string][]time.Time)}
}

func (s *MemoryWindowStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.entries[key][:0]
	for _, ts := range s.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.entries[key] = kept
	return len(kept), nil
}

// MemoryMonthlyStore is an in-process MonthlyStore. Safe for concurrent use.
type MemoryMonthlyStore struct {
	mu      sync.Mutex
	records map[string]Monthly
}

func NewMemoryMonthlyStore() *MemoryMonthlyStore {
	return &MemoryMonthlyStore{records: make(map[string]Monthly)}
}

func (s *MemoryMonthlyStore) Get(ctx context.Context, key string) (Monthly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key], nil
}

func (s *MemoryMonthlyStore) Put(ctx context.Context, key string, m Monthly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = m
	return nil
}
