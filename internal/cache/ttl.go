package cache

import (
	"sync"
	"time"
)

// Clock reports the current time. Tests inject a fake to drive expiry.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

type entry[V any] struct {
	data      V
	timestamp time.Time
}

// DefaultMaxEntries bounds a TTL cache unless WithLimit says otherwise.
const DefaultMaxEntries = 10_000

// TTL is an in-memory cache whose entries expire a fixed duration after they were stored.
// Expired entries are dropped on read, and by Set once the cache is full. A full
// cache with nothing expired evicts its oldest entry.
type TTL[V any] struct {
	mu         sync.Mutex
	items      map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	clock      Clock
}

// NewTTL returns a cache with the given lifetime. A nil clock uses the wall clock.
func NewTTL[V any](ttl time.Duration, clock Clock) *TTL[V] {
	if clock == nil {
		clock = RealClock
	}
	return &TTL[V]{
		items:      make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		clock:      clock,
	}
}

// WithLimit sets the maximum number of entries and returns c.
func (c *TTL[V]) WithLimit(n int) *TTL[V] {
	c.mu.Lock()
	if n > 0 {
		c.maxEntries = n
	}
	c.mu.Unlock()
	return c
}

func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.clock.Now().Sub(e.timestamp) >= c.ttl {
		delete(c.items, key)
		return zero, false
	}
	return e.data, true
}

func (c *TTL[V]) Set(key string, v V) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		if c.pruneLocked(now) == 0 {
			c.evictOldestLocked()
		}
	}
	c.items[key] = entry[V]{data: v, timestamp: now}
}

func (c *TTL[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.items {
		if !found || e.timestamp.Before(oldest) {
			oldestKey, oldest, found = k, e.timestamp, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}

func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Prune removes expired entries and returns how many were removed.
func (c *TTL[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(c.clock.Now())
}

func (c *TTL[V]) pruneLocked(now time.Time) int {
	n := 0
	for k, e := range c.items {
		if now.Sub(e.timestamp) >= c.ttl {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
