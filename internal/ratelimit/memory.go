package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count   int64
	expires time.Time
}

// MemoryStore is an in-process counter store for development and tests.
// Budgets enforced by it are per-replica.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Incr implements CounterStore.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expires) {
		entry = &windowEntry{expires: now.Add(window)}
		s.entries[key] = entry
	}
	entry.count++

	return entry.count, entry.expires.Sub(now), nil
}
