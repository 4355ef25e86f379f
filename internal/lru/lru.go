// Package lru provides a small thread-safe least-recently-used cache.
package lru

import (
	"container/list"
	"sync"
)

// Cache is an LRU (Least Recently Used) cache with a fixed capacity.
type Cache[K comparable, V any] struct {
	capacity int
	mu       sync.Mutex
	items    map[K]*list.Element
	lruList  *list.List
}

// entry represents a key-value pair in the cache.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// Evicted is a key-value pair pushed out of the cache by Put.
type Evicted[K comparable, V any] struct {
	Key   K
	Value V
}

// New creates a new LRU cache with the specified capacity.
// A capacity below one is treated as one.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		lruList:  list.New(),
	}
}

// Get retrieves a value from the cache and marks it as recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		// Move to front (most recently used).
		c.lruList.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, true
	}

	var zero V
	return zero, false
}

// Put adds or updates a value in the cache. Entries evicted to make room
// are returned so the caller can release them outside the cache lock.
func (c *Cache[K, V]) Put(key K, value V) []Evicted[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	// If key exists, update and move to front.
	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return nil
	}

	elem := c.lruList.PushFront(&entry[K, V]{key: key, value: value})
	c.items[key] = elem

	var evicted []Evicted[K, V]
	for c.lruList.Len() > c.capacity {
		evicted = append(evicted, c.evictOldest())
	}
	return evicted
}

// Remove deletes key from the cache, returning its value if it was present.
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.lruList.Remove(elem)
	delete(c.items, key)
	return elem.Value.(*entry[K, V]).value, true
}

// Drain empties the cache and returns everything it held, most recently
// used first.
func (c *Cache[K, V]) Drain() []Evicted[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Evicted[K, V], 0, c.lruList.Len())
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[K, V])
		out = append(out, Evicted[K, V]{Key: e.key, Value: e.value})
	}
	c.items = make(map[K]*list.Element)
	c.lruList.Init()
	return out
}

// evictOldest removes the least recently used item from the cache.
func (c *Cache[K, V]) evictOldest() Evicted[K, V] {
	elem := c.lruList.Back()
	c.lruList.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(c.items, e.key)
	return Evicted[K, V]{Key: e.key, Value: e.value}
}

// Len returns the current number of items in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}
