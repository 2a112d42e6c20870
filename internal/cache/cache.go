// Package cache implements the generic key/value cache facade that the DNS
// facade consults, per spec.md §6. It is grounded on the
// mutex-plus-map discipline of the teacher's internal/domaininfo.DB, but
// without the backing persistent store: spec.md §6 requires no on-disk
// persisted state for this module.
package cache

import (
	"sync"
	"time"
)

// Cache is the collaborator contract: Has/Get/Set over ASCII string keys
// and JSON-like values (strings, []string, bool, or small tuples).
type Cache interface {
	Has(key string) bool
	Get(key string) (value any, ok bool)
	Set(key string, value any, ttl time.Duration)
}

type entry struct {
	value   any
	expires time.Time // zero means "never expires"
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Map is the default in-memory implementation, safe for concurrent use by
// multiple Verifier/DNS-facade instances sharing one cache, per spec.md §5.
type Map struct {
	mu sync.Mutex
	m  map[string]entry
}

// NewMap returns an empty Map cache.
func NewMap() *Map {
	return &Map{m: map[string]entry{}}
}

// Has reports whether key is present and unexpired.
func (c *Map) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		delete(c.m, key)
		return false
	}
	return true
}

// Get returns the cached value for key, if present and unexpired.
func (c *Map) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.m, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A zero ttl means "does not expire", matching
// how the teacher's domaininfo.DB entries persist until explicitly
// replaced. Cache writes never fail (spec.md §5 "resource discipline":
// cache writes tolerate failures silently) because this implementation
// cannot fail to write to memory.
func (c *Map) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.m[key] = e
}
