package digest

import (
	"context"
	"sync"
	"time"
)

// CacheEntry is a stored summary and the time it stops being served.
type CacheEntry struct {
	Key       string
	Payload   Summary
	ExpiresAt time.Time
}

// UsageCounter counts requests for one video until ExpiresAt.
type UsageCounter struct {
	Key       string
	Count     int64
	ExpiresAt time.Time
}

// Store is the persistence abstraction for cached summaries and usage counters.
// Implementations must be safe for concurrent use. Expiry decisions belong to
// Cache, except where an implementation must apply them atomically
// (IncrementUsage).
type Store interface {
	GetResult(ctx context.Context, key string) (CacheEntry, bool, error)
	SetResult(ctx context.Context, e CacheEntry) error
	// IncrementUsage adds one to the counter for key and moves its expiry to
	// expiresAt. A counter already expired at now restarts from one.
	IncrementUsage(ctx context.Context, key string, now, expiresAt time.Time) (int64, error)
	ListUsage(ctx context.Context) ([]UsageCounter, error)
	CountResults(ctx context.Context, now time.Time) (int, error)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string]CacheEntry
	usage   map[string]UsageCounter
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		results: make(map[string]CacheEntry),
		usage:   make(map[string]UsageCounter),
	}
}

// GetResult implements Store.GetResult.
func (s *InMemoryStore) GetResult(_ context.Context, key string) (CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.results[key]
	return e, ok, nil
}

// SetResult implements Store.SetResult.
func (s *InMemoryStore) SetResult(_ context.Context, e CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[e.Key] = e
	return nil
}

// IncrementUsage implements Store.IncrementUsage.
func (s *InMemoryStore) IncrementUsage(_ context.Context, key string, now, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usage[key]
	if !ok || !now.Before(u.ExpiresAt) {
		u = UsageCounter{Key: key}
	}
	u.Count++
	u.ExpiresAt = expiresAt
	s.usage[key] = u
	return u.Count, nil
}

// ListUsage implements Store.ListUsage.
func (s *InMemoryStore) ListUsage(_ context.Context) ([]UsageCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UsageCounter, 0, len(s.usage))
	for _, u := range s.usage {
		out = append(out, u)
	}
	return out, nil
}

// CountResults implements Store.CountResults.
func (s *InMemoryStore) CountResults(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.results {
		if now.Before(e.ExpiresAt) {
			n++
		}
	}
	return n, nil
}
