package digest

import (
	"context"
	"sort"
	"time"
)

const (
	DefaultResultTTL = time.Hour
	DefaultUsageTTL  = 24 * time.Hour
)

// Cache is the result cache and usage counter. It is safe for concurrent use
// when its Store is. Entries expire lazily: a read past ExpiresAt behaves as a
// miss and nothing is deleted.
type Cache struct {
	store     Store
	resultTTL time.Duration
	usageTTL  time.Duration
	now       func() time.Time
}

// NewCache returns a Cache backed by an InMemoryStore.
func NewCache(resultTTL, usageTTL time.Duration) *Cache {
	return NewCacheWithStore(NewInMemoryStore(), resultTTL, usageTTL)
}

// NewCacheWithStore returns a Cache that uses the given Store. Non-positive
// TTLs fall back to DefaultResultTTL and DefaultUsageTTL.
func NewCacheWithStore(store Store, resultTTL, usageTTL time.Duration) *Cache {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	if usageTTL <= 0 {
		usageTTL = DefaultUsageTTL
	}
	return &Cache{
		store:     store,
		resultTTL: resultTTL,
		usageTTL:  usageTTL,
		now:       time.Now,
	}
}

// Get returns the summary stored for id unless it is absent or expired.
func (c *Cache) Get(ctx context.Context, id string) (*Summary, bool, error) {
	e, ok, err := c.store.GetResult(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	if !c.now().Before(e.ExpiresAt) {
		return nil, false, nil
	}
	s := e.Payload
	return &s, true, nil
}

// Put stores s under id, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, id string, s *Summary) error {
	return c.store.SetResult(ctx, CacheEntry{
		Key:       id,
		Payload:   *s,
		ExpiresAt: c.now().Add(c.resultTTL),
	})
}

// RecordUsage increments the usage counter for id and returns the new count.
func (c *Cache) RecordUsage(ctx context.Context, id string) (int64, error) {
	now := c.now()
	return c.store.IncrementUsage(ctx, id, now, now.Add(c.usageTTL))
}

// TopUsage returns up to n live counters, highest count first and by id on ties.
func (c *Cache) TopUsage(ctx context.Context, n int) ([]UsageStat, error) {
	counters, err := c.store.ListUsage(ctx)
	now := c.now()
	if err != nil {
		return nil, err
	}

	stats := make([]UsageStat, 0, len(counters))
	for _, u := range counters {
		if now.Before(u.ExpiresAt) {
			stats = append(stats, UsageStat{VideoID: u.Key, Count: u.Count})
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].VideoID < stats[j].VideoID
	})
	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats, nil
}

// Len returns the number of unexpired cached summaries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.CountResults(ctx, c.now())
}
