// Package cache provides a bounded LRU cache whose entries are built on
// first use. Builds are serialized per key so that concurrent first requests
// for the same key run the builder exactly once, while requests for
// different keys proceed independently.
package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key K
	val V
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[K]*list.Element
	order    *list.List // front = most recently used
	inflight map[K]*call[V]
}

func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		entries:  make(map[K]*list.Element),
		order:    list.New(),
		inflight: make(map[K]*call[V]),
	}
}

// GetOrCreate returns the cached value for key, building it with build if
// absent. A failed build caches nothing. Entries are never invalidated
// except by LRU eviction once capacity is exceeded.
func (c *Cache[K, V]) GetOrCreate(key K, build func() (V, error)) (V, error) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		v := el.Value.(*entry[K, V]).val
		c.mu.Unlock()
		return v, nil
	}
	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-inflight.done
		return inflight.val, inflight.err
	}

	inflight := &call[V]{done: make(chan struct{})}
	c.inflight[key] = inflight
	c.mu.Unlock()

	val, err := build()

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		el := c.order.PushFront(&entry[K, V]{key: key, val: val})
		c.entries[key] = el
		if c.order.Len() > c.capacity {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry[K, V]).key)
		}
	}
	c.mu.Unlock()

	inflight.val = val
	inflight.err = err
	close(inflight.done)
	return val, err
}

// Len reports the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
