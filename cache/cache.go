// Package cache provides the in-memory TTL caches used for feeds,
// resolved media links and name-to-identifier lookups.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Cache is a mutex-guarded map with per-entry expiry. The zero value is
// not usable; create instances with New.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	now     func() time.Time
}

type entry[V any] struct {
	value  V
	label  string
	expire time.Time
}

// EntryInfo describes a live cache entry for administrative listings.
type EntryInfo struct {
	Key    string    `json:"key"`
	Label  string    `json:"label,omitempty"`
	Expire time.Time `json:"expire"`
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !e.expire.After(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key for the given TTL.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.PutLabeled(key, "", value, ttl)
}

// PutLabeled stores value with a human-readable label shown in listings
// (feed caches use the feed title).
func (c *Cache[V]) PutLabeled(key, label string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, label: label, expire: c.now().Add(ttl)}
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes all entries and returns the number removed.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry[V])
	return n
}

// Sweep removes expired entries and returns the number removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.expire.After(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries lists live entries sorted by key.
func (c *Cache[V]) Entries() []EntryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	infos := make([]EntryInfo, 0, len(c.entries))
	for key, e := range c.entries {
		if !e.expire.After(now) {
			continue
		}
		infos = append(infos, EntryInfo{Key: key, Label: e.label, Expire: e.expire})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}
