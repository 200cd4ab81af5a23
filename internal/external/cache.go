package external

import (
	"sync"
	"sync/atomic"
	"time"

	"campreg/internal/metrics"
)

// cacheEntry holds one decoded response and when it was fetched.
type cacheEntry struct {
	value     any
	namespace string
	fetchedAt time.Time
}

// CacheStats is the introspection snapshot returned by PretixClient.CacheStats.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// TTLCache is the process-local response cache owned by the pretix client.
// It is a performance optimization only: reads may observe a slightly stale
// entry while a write is in flight, which is acceptable.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key if it is younger than the TTL.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		c.misses.Add(1)
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	c.hits.Add(1)
	metrics.CacheHitsTotal.Inc()
	return entry.value, true
}

// Set stores value under key, tagged with a namespace for invalidation.
func (c *TTLCache) Set(key, namespace string, value any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		value:     value,
		namespace: namespace,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}

// InvalidateNamespace drops every entry tagged with any of the given
// namespaces. Mutating calls use this to preserve read-after-write
// consistency for the affected event.
func (c *TTLCache) InvalidateNamespace(namespaces ...string) {
	drop := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		drop[ns] = struct{}{}
	}

	c.mu.Lock()
	for key, entry := range c.entries {
		if _, ok := drop[entry.namespace]; ok {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Stats returns a point-in-time snapshot.
func (c *TTLCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
