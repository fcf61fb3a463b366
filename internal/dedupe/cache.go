package dedupe

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache keeps a bounded set of recently ingested headline ids.
type Cache struct {
	lru *expirable.LRU[string, struct{}]
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{lru: expirable.NewLRU[string, struct{}](capacity, nil, ttl)}
}

// IsSeen reports whether key was marked inside the ttl window.
// It does not mark the key; use MarkSeen for that.
func (c *Cache) IsSeen(key string) bool {
	_, ok := c.lru.Get(key)
	return ok
}

// MarkSeen records that a key has been processed, evicting the oldest entry
// once the cache is full.
func (c *Cache) MarkSeen(key string) {
	c.lru.Add(key, struct{}{})
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
