package transit

import (
	"fmt"
	"sync"
	"time"

	"shadowcal/internal/clock"
	"shadowcal/internal/geo"
)

const (
	// DefaultCacheTTL bounds how stale a cached estimate may be.
	DefaultCacheTTL = 6 * time.Hour
	// timeBucket is the arrive-by granularity of cache keys.
	timeBucket = 30 * time.Minute
	nowBucket  = "now"
)

// CacheKey builds the quantized key for an origin/destination/arrive-by
// triple. Points in the same ~0.001° cell and deadlines in the same
// 30-minute bucket share a key.
func CacheKey(origin, dest geo.Point, arriveBy *time.Time) string {
	bucket := nowBucket
	if arriveBy != nil {
		bucket = fmt.Sprintf("%d", arriveBy.Unix()/int64(timeBucket/time.Second))
	}
	return geo.GridKey(origin) + "|" + geo.GridKey(dest) + "|" + bucket
}

type cacheEntry struct {
	est      Estimate
	storedAt time.Time
}

// Cache is a TTL map of estimates. Concurrent writers to the same key are
// last-write-wins.
type Cache struct {
	ttl   time.Duration
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache creates a cache. ttl <= 0 uses DefaultCacheTTL; a nil clock uses
// the system clock.
func NewCache(ttl time.Duration, c clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Cache{ttl: ttl, clock: c, entries: make(map[string]cacheEntry)}
}

// Get returns a live entry for key.
func (c *Cache) Get(key string) (Estimate, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().Sub(e.storedAt) >= c.ttl {
		return Estimate{}, false
	}
	est := e.est
	est.Legs = cloneLegs(e.est.Legs)
	return est, true
}

// Put stores a copy of est under key, stamped with the current time.
func (c *Cache) Put(key string, est Estimate) {
	est.Legs = cloneLegs(est.Legs)
	c.mu.Lock()
	c.entries[key] = cacheEntry{est: est, storedAt: c.clock.Now()}
	c.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
