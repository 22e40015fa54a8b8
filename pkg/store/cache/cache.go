// Package cache provides a thread-safe, TTL-based, size-limited entity
// cache used in front of the authoritative read store. A doubly-linked
// list maintains insertion order for O(1) eviction of the oldest entry.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the cached value, its timestamp, and its list element.
type entry[T any] struct {
	value     T
	timestamp time.Time
	element   *list.Element
}

// Cache holds entities keyed by ID with per-entry TTL expiry. A
// background goroutine periodically removes expired entries.
type Cache[T any] struct {
	mu      sync.RWMutex
	items   map[string]*entry[T]
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool

	hits   int64
	misses int64
}

// New creates a cache with the given TTL and maximum entry count.
func New[T any](ttl time.Duration, maxSize int) *Cache[T] {
	c := &Cache[T]{
		items:   make(map[string]*entry[T]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.items[key]
	if !ok || time.Since(e.timestamp) >= c.ttl {
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Put stores a value under key. If the cache is at capacity the oldest
// entry is evicted to make room.
func (c *Cache[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, exists := c.items[key]; exists {
		e.value = value
		e.timestamp = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.items[key] = &entry[T]{
		value:     value,
		timestamp: now,
		element:   elem,
	}
}

// Invalidate removes key from the cache. Missing keys are a no-op.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return
	}
	c.order.Remove(e.element)
	delete(c.items, key)
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache[T]) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache[T]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.items, key)
}

// cleanup runs in a background goroutine, periodically removing
// expired entries.
func (c *Cache[T]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[T]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.items {
		if now.Sub(e.timestamp) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.items, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple
// times.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
