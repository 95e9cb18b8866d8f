package aggregate

import (
	"fmt"
	"sync"
	"time"

	"github.com/angelcm/ghl-stats-go/internal/classify"
)

// Cache memoizes aggregation results per (slug, window). It is an
// optimization only: a miss re-runs the full fetch/classify/fold pipeline.
// The interface exists so a distributed cache can replace the in-memory one
// without touching the engine.
type Cache interface {
	Get(key string) (*Result, bool)
	Set(key string, r *Result)
}

func cacheKey(slug string, w classify.Window) string {
	return fmt.Sprintf("%s|%d|%d", slug, w.StartMs, w.EndMs)
}

type memoryEntry struct {
	result   *Result
	storedAt time.Time
}

// MemoryCache is a mutex-guarded map with a fixed TTL and lazy eviction on
// read. A TTL of zero disables it entirely.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(key string) (*Result, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.result, true
}

func (c *MemoryCache) Set(key string, r *Result) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: r, storedAt: c.now()}
}
