package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

type Config struct {
	TTL     time.Duration
	MaxSize int
}

// Stats are simple counters for cache behavior.
type Stats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// Memory is a size-bounded in-memory cache with per-entry expiry.
type Memory[V any] struct {
	entries map[string]*entry[V]
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	// counters
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func NewMemory[V any](c Config) *Memory[V] {
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxSize == 0 {
		c.MaxSize = 500
	}

	return &Memory[V]{
		entries: make(map[string]*entry[V]),
		ttl:     c.TTL,
		maxSize: c.MaxSize,
		now:     time.Now,
	}
}

func (c *Memory[V]) Get(key string) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, ErrNotFound
	}

	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses.Add(1)
		c.evictions.Add(1)
		return zero, ErrNotFound
	}

	c.hits.Add(1)
	return e.value, nil
}

// Set stores value under the cache-wide TTL.
func (c *Memory[V]) Set(key string, value V) error {
	return c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with its own lifetime. A non-positive ttl falls
// back to the cache-wide TTL.
func (c *Memory[V]) SetWithTTL(key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.entries[key] = &entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}

	c.sets.Add(1)
	return nil
}

// evictLocked drops expired entries, or the entry closest to expiry when
// none have expired.
func (c *Memory[V]) evictLocked() {
	now := c.now()
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			c.evictions.Add(1)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

func (c *Memory[V]) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, existed := c.entries[key]; existed {
		delete(c.entries, key)
		c.deletes.Add(1)
	}
	return nil
}

// Take returns the value and removes it in one step.
func (c *Memory[V]) Take(key string) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, ErrNotFound
	}
	delete(c.entries, key)
	if !c.now().Before(e.expiresAt) {
		c.misses.Add(1)
		c.evictions.Add(1)
		return zero, ErrNotFound
	}
	c.hits.Add(1)
	c.deletes.Add(1)
	return e.value, nil
}

func (c *Memory[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	return nil
}

func (c *Memory[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Memory[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
