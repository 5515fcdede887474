package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

const defaultMemoryEntries = 1000

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is a bounded in-process map with per-entry expiry.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]memoryEntry
	maxEntries int
	metrics    *CacheMetrics
	now        func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithLimit(defaultMemoryEntries)
}

func NewMemoryCacheWithLimit(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	return &MemoryCache{
		items:      make(map[string]memoryEntry),
		maxEntries: maxEntries,
		metrics:    NewCacheMetrics(),
		now:        time.Now,
	}
}

// Set stores value under key. A non-positive ttl never expires.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.items[key] = entry
	c.metrics.RecordSet()
}

// evictLocked drops expired entries, or one arbitrary entry if none expired.
func (c *MemoryCache) evictLocked(now time.Time) {
	removed := 0
	for key, entry := range c.items {
		if entry.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	if removed > 0 {
		return
	}
	for key := range c.items {
		delete(c.items, key)
		return
	}
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		c.metrics.RecordMiss()
		return nil, false
	}

	if entry.expired(c.now()) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.expired(c.now()) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		c.metrics.RecordMiss()
		return nil, false
	}

	c.metrics.RecordHit()
	return entry.value, true
}

func (c *MemoryCache) Delete(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if _, found := c.items[key]; found {
			delete(c.items, key)
			c.metrics.RecordDelete()
		}
	}
}

// DeletePattern removes keys matching a glob pattern and reports how many
// were removed.
func (c *MemoryCache) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.items {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.items, key)
			c.metrics.RecordDelete()
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]memoryEntry)
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if entry.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// StartJanitor purges expired entries every interval until ctx is done.
func (c *MemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.purgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *MemoryCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"entries":     c.Len(),
		"max_entries": c.maxEntries,
		"metrics":     c.metrics.Snapshot(),
	}
}
