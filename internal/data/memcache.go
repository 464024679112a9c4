package data

import (
	"sync"
	"time"

	"github.com/tradeedge/signalcore/internal/domain"
)

type memEntry struct {
	bars    []domain.Bar
	expires time.Time
}

// memCache is the in-process TTL layer in front of Redis.
type memCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memEntry
}

func newMemCache(ttl time.Duration) *memCache {
	return &memCache{ttl: ttl, entries: make(map[string]memEntry)}
}

func (c *memCache) get(symbol string) ([]domain.Bar, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.bars, true
}

func (c *memCache) put(symbol string, bars []domain.Bar) {
	c.mu.Lock()
	c.entries[symbol] = memEntry{bars: bars, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
