package store

import (
	"sync"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// MemoryCache is the first cache layer in front of the durable store. An
// entry is stale iff now > storedAt + ttl; stale entries are treated as
// absent, never returned.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	result   domain.AnalysisResult
	storedAt time.Time
}

// NewMemoryCache creates a cache with the given entry TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a fresh entry, expiring stale ones lazily.
func (c *MemoryCache) Get(key string) (domain.AnalysisResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return domain.AnalysisResult{}, false
	}
	if c.now().After(entry.storedAt.Add(c.ttl)) {
		c.evictStale(key)
		return domain.AnalysisResult{}, false
	}
	return entry.result, true
}

// evictStale drops the entry only if it is still stale under the write lock.
// A concurrent Set between the read check and here must not lose its fresh
// entry.
func (c *MemoryCache) evictStale(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if ok && c.now().After(entry.storedAt.Add(c.ttl)) {
		delete(c.entries, key)
	}
}

// Set stores a fresh entry, replacing any previous one for the key.
func (c *MemoryCache) Set(key string, result domain.AnalysisResult) {
	if key == "" {
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{result: result, storedAt: c.now()}
	c.mu.Unlock()
}

var _ ports.AnalysisCache = (*MemoryCache)(nil)
