// Package cache provides a small capacity-bounded LRU cache with expiry.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type item[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

// Cache is safe for concurrent use. A zero TTL keeps entries until they
// are evicted by capacity.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    clockwork.Clock
	order    *list.List
	items    map[K]*list.Element
}

func New[K comparable, V any](capacity int, ttl time.Duration, clock clockwork.Clock) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 128
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	it := el.Value.(*item[K, V])
	if c.expired(it) {
		c.remove(el)

		return zero, false
	}

	c.order.MoveToFront(el)

	return it.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.clock.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		it := el.Value.(*item[K, V])
		it.value = value
		it.expires = expires
		c.order.MoveToFront(el)

		return
	}

	c.items[key] = c.order.PushFront(&item[K, V]{key: key, value: value, expires: expires})

	for c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	clear(c.items)
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

func (c *Cache[K, V]) expired(it *item[K, V]) bool {
	return !it.expires.IsZero() && !c.clock.Now().Before(it.expires)
}

func (c *Cache[K, V]) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*item[K, V]).key)
}
