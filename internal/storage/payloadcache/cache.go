// Package payloadcache holds the most recent upstream payload together with the
// time it was stored.
package payloadcache

import (
	"sync"
	"time"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
)

// DefaultTTL is how long a stored payload is served without refetching.
const DefaultTTL = 5 * time.Minute

// Cache is a single-entry, time-bounded payload store. It is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	payload  *domain.PurchasePayload
	storedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored payload and its store time, if any. Staleness is not checked.
func (c *Cache) Get() (*domain.PurchasePayload, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.payload == nil {
		return nil, time.Time{}, false
	}
	return c.payload, c.storedAt, true
}

// Fresh returns the stored payload only while it is not stale.
func (c *Cache) Fresh() (*domain.PurchasePayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.staleLocked(c.now()) {
		return nil, false
	}
	return c.payload, true
}

// Set replaces the stored payload and resets its age.
func (c *Cache) Set(p *domain.PurchasePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payload = p
	c.storedAt = c.now()
}

// IsStale reports whether a fetch is needed at the given instant.
func (c *Cache) IsStale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.staleLocked(now)
}

// Invalidate marks the entry stale but keeps the payload for Get.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storedAt = time.Time{}
}

// TTL returns the stale window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) staleLocked(now time.Time) bool {
	if c.payload == nil || c.storedAt.IsZero() {
		return true
	}
	return now.Sub(c.storedAt) >= c.ttl
}
