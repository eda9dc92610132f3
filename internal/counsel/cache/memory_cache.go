package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	result    *HistoryCacheResult
	expiresAt time.Time
}

// MemoryHistoryCache is an in-process HistoryCache for single-node
// deployments and tests.
type MemoryHistoryCache struct {
	entries map[string]memoryEntry
	prefix  string
	mu      sync.RWMutex
}

// NewMemoryHistoryCache creates a new in-memory history cache.
func NewMemoryHistoryCache(prefix string) *MemoryHistoryCache {
	return &MemoryHistoryCache{
		entries: make(map[string]memoryEntry),
		prefix:  prefix,
	}
}

// BuildKey builds the cache key for a history page.
func (c *MemoryHistoryCache) BuildKey(sessionID, cursor string, limit int) string {
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s:%s:%s:%d", c.prefix, sessionID, cursor, limit)
}

// Get fetches a cached history page.
func (c *MemoryHistoryCache) Get(_ context.Context, key string) (*HistoryCacheResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	return entry.result, nil
}

// Set stores a history page with a TTL.
func (c *MemoryHistoryCache) Set(_ context.Context, key string, result *HistoryCacheResult, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{
		result:    result,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Close clears the cache.
func (c *MemoryHistoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}
