package query

import (
	"time"
)

// cacheEntry is one cached result snapshot. An entry is valid only while
// now - cachedAt < ttl; stale entries are never returned and are silently
// replaced on the next store for their key.
type cacheEntry struct {
	result   Result
	cachedAt time.Time
}

// resultCache is a bounded TTL cache with deterministic
// oldest-insertion-first eviction.
type resultCache struct {
	entries map[string]cacheEntry
	order   []string // insertion order, oldest first
	maxSize int
	ttl     time.Duration
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// get returns a live entry. Stale entries are reported as misses.
func (c *resultCache) get(key string, now time.Time) (Result, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if now.Sub(entry.cachedAt) >= c.ttl {
		return Result{}, false
	}
	return entry.result, true
}

// set stores a result, evicting the oldest-inserted entries once capacity
// is exceeded. Re-storing an existing key refreshes its content without
// changing its insertion position.
func (c *resultCache) set(key string, result Result, now time.Time) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{result: result, cachedAt: now}

	for len(c.entries) > c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// clear drops every entry.
func (c *resultCache) clear() {
	c.entries = make(map[string]cacheEntry)
	c.order = nil
}

// len returns the number of entries, stale ones included.
func (c *resultCache) len() int {
	return len(c.entries)
}
