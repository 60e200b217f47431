// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ttlcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/bureau-foundation/adminbot/lib/clock"
)

// Cache is a thread-safe map bounded by capacity and per-entry TTL.
//
// Set inserts with expiry now+ttl; re-setting a key refreshes its
// expiry and moves it to the back of the eviction order. When the
// cache is full, the entry closest to expiry (the front of the
// insertion order) is evicted. Get lazily drops expired entries.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clk      clock.Clock
	entries  map[K]*list.Element
	order    *list.List // front = oldest insertion, back = newest
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

// New creates a cache holding at most capacity entries, each living
// for ttl after its last Set. Panics if capacity or ttl is not
// positive.
func New[K comparable, V any](capacity int, ttl time.Duration, clk clock.Clock) *Cache[K, V] {
	if capacity <= 0 {
		panic("ttlcache: capacity must be positive")
	}
	if ttl <= 0 {
		panic("ttlcache: ttl must be positive")
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clk:      clk,
		entries:  make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Set stores value under key, refreshing the TTL if the key exists.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.purgeExpired(now)

	if element, ok := c.entries[key]; ok {
		e := element.Value.(*entry[K, V])
		e.value = value
		e.expires = now.Add(c.ttl)
		c.order.MoveToBack(element)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	c.entries[key] = c.order.PushBack(&entry[K, V]{
		key:     key,
		value:   value,
		expires: now.Add(c.ttl),
	})
}

// Get returns the live value for key. An expired entry is removed and
// reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if !e.expires.After(c.clk.Now()) {
		c.remove(element)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpired(c.clk.Now())
	return len(c.entries)
}

func (c *Cache[K, V]) purgeExpired(now time.Time) {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*entry[K, V])
		if e.expires.After(now) {
			return
		}
		c.remove(front)
	}
}

func (c *Cache[K, V]) evictOldest() {
	if front := c.order.Front(); front != nil {
		c.remove(front)
	}
}

func (c *Cache[K, V]) remove(element *list.Element) {
	e := element.Value.(*entry[K, V])
	delete(c.entries, e.key)
	c.order.Remove(element)
}
