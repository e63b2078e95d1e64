package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ResponseCache holds coordinated answers for a bounded TTL. Expired
// entries are evicted lazily on lookup.
type ResponseCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	response  QueryResponse
	expiresAt time.Time
}

// NewResponseCache creates a cache with the given TTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// CacheKey derives the composite lookup key for one query context.
// Two users asking the same question about the same chapter never
// share an entry.
func CacheKey(query string, userID, documentID int64, chapter int, agent string) string {
	composite := fmt.Sprintf("%s|%d|%s|%d|%d", query, userID, agent, documentID, chapter)
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for a key if it has not expired.
func (c *ResponseCache) Get(key string) (QueryResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return QueryResponse{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return QueryResponse{}, false
	}
	return entry.response, true
}

// Put stores a response under a key for the cache TTL.
func (c *ResponseCache) Put(key string, resp QueryResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: resp, expiresAt: time.Now().Add(c.ttl)}
}

// Size reports entry count including not-yet-evicted expired entries.
func (c *ResponseCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes all expired entries and reports how many were dropped.
func (c *ResponseCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	dropped := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}
