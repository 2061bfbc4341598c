// Package cache holds REST read results between backfills. Entries expire
// after a TTL and the whole cache is dropped whenever the streaks table is
// rewritten.
package cache

import (
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/autonomy/pkg/streaks"
)

const streaksPrefix = "streaks:"

// Cache wraps go-cache with hit accounting and typed accessors for the
// values the server caches.
type Cache struct {
	store  *gocache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache. defaultTTL is the lifetime of an entry and
// cleanupInterval how often expired entries are purged.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value and records a hit or miss.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// Streaks returns the cached streak list for limit.
func (c *Cache) Streaks(limit int) ([]streaks.Streak, bool) {
	v, ok := c.Get(streaksKey(limit))
	if !ok {
		return nil, false
	}
	rows, ok := v.([]streaks.Streak)
	return rows, ok
}

// SetStreaks caches the streak list read with limit.
func (c *Cache) SetStreaks(limit int, rows []streaks.Streak) {
	c.Set(streaksKey(limit), rows)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of entries, including expired ones not yet
// purged.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats describes cache usage.
type Stats struct {
	Items  int    `json:"items"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		Items:  c.store.ItemCount(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

func streaksKey(limit int) string {
	return streaksPrefix + strconv.Itoa(limit)
}
