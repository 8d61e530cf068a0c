package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/serenova/aicore/services/providers"
)

// MemoryStore is an in-memory LRU cache with TTL.
// Thread-safe implementation using sync.Mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

type memoryEntry struct {
	entry   *Entry
	element *list.Element // For LRU tracking
}

// NewMemoryStore creates a new MemoryStore with specified max size and TTL
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached response. Expired entries are treated as absent
// and removed.
func (c *MemoryStore) Get(_ context.Context, queryText string, provider providers.ID) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(queryText, provider)
	me, exists := c.entries[key]

	if !exists || !c.now().Before(me.entry.ExpiresAt) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil, false
	}

	c.lruList.MoveToFront(me.element)
	c.hits++

	return me.entry, true
}

// Put stores a response. An existing live entry for the same key is left
// untouched; an expired one is replaced.
func (c *MemoryStore) Put(_ context.Context, queryText string, provider providers.ID, response string, tokensUsed int, costUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(queryText, provider)
	now := c.now()

	if me, exists := c.entries[key]; exists {
		if now.Before(me.entry.ExpiresAt) {
			return
		}
		c.removeEntry(key)
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	me := &memoryEntry{
		entry: &Entry{
			QueryHash:  QueryHash(queryText),
			Provider:   provider,
			Response:   response,
			TokensUsed: tokensUsed,
			CostUSD:    costUSD,
			CreatedAt:  now,
			ExpiresAt:  now.Add(c.ttl),
		},
	}
	me.element = c.lruList.PushFront(key)
	c.entries[key] = me
}

// Stats returns cache hit/miss counters
func (c *MemoryStore) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.lruList.Len()
}

// CleanupExpired removes all expired entries and returns how many were
// dropped. Should be called periodically in a background goroutine.
func (c *MemoryStore) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredKeys := make([]string, 0)
	for key, me := range c.entries {
		if !now.Before(me.entry.ExpiresAt) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		c.removeEntry(key)
	}

	return len(expiredKeys)
}

// StartCleanupWorker runs CleanupExpired on an interval until the context
// is cancelled
func (c *MemoryStore) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// removeEntry removes an entry (must be called with lock held)
func (c *MemoryStore) removeEntry(key string) {
	if me, exists := c.entries[key]; exists {
		c.lruList.Remove(me.element)
		delete(c.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *MemoryStore) evictLRU() {
	back := c.lruList.Back()
	if back != nil {
		key := back.Value.(string)
		c.lruList.Remove(back)
		delete(c.entries, key)
	}
}
