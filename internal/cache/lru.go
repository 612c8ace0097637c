// Package cache provides a bounded in-memory LRU with per-entry expiry.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxSize is used when NewLRU is given a non-positive size
const DefaultMaxSize = 1024

// node is one entry of the recency list
type node[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
	prev    *node[K, V]
	next    *node[K, V]
}

// Stats describes cache usage
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Size     int     `json:"size"`
	MaxSize  int     `json:"max_size"`
	HitRatio float64 `json:"hit_ratio"`
}

// LRU evicts the least recently used entry once full. Entries older than
// the TTL are treated as missing. A zero TTL never expires entries.
type LRU[K comparable, V any] struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	// sentinel nodes
	head *node[K, V]
	tail *node[K, V]

	items map[K]*node[K, V]
	mutex sync.Mutex

	hits   int64
	misses int64
}

// NewLRU creates a cache holding at most maxSize entries
func NewLRU[K comparable, V any](maxSize int, ttl time.Duration) *LRU[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	head := &node[K, V]{}
	tail := &node[K, V]{}
	head.next = tail
	tail.prev = head

	return &LRU[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		head:    head,
		tail:    tail,
		items:   make(map[K]*node[K, V]),
	}
}

// Get returns the value for key and marks it recently used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n, ok := c.items[key]
	if ok && c.expired(n) {
		c.remove(n)
		ok = false
	}
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		var zero V
		return zero, false
	}

	c.moveToFront(n)
	atomic.AddInt64(&c.hits, 1)
	return n.value, true
}

// Set adds or replaces the value for key
func (c *LRU[K, V]) Set(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if n, ok := c.items[key]; ok {
		n.value = value
		n.expires = expires
		c.moveToFront(n)
		return
	}

	n := &node[K, V]{key: key, value: value, expires: expires}
	c.addToFront(n)
	c.items[key] = n

	if len(c.items) > c.maxSize {
		c.remove(c.tail.prev)
	}
}

// Invalidate removes key
func (c *LRU[K, V]) Invalidate(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, ok := c.items[key]; ok {
		c.remove(n)
	}
}

// Clear removes every entry and resets the counters
func (c *LRU[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[K]*node[K, V])

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Len returns the number of entries, expired ones included
func (c *LRU[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Stats returns current cache statistics
func (c *LRU[K, V]) Stats() Stats {
	c.mutex.Lock()
	size := len(c.items)
	c.mutex.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	return Stats{
		Hits:     hits,
		Misses:   misses,
		Size:     size,
		MaxSize:  c.maxSize,
		HitRatio: ratio,
	}
}

func (c *LRU[K, V]) expired(n *node[K, V]) bool {
	return !n.expires.IsZero() && !c.now().Before(n.expires)
}

func (c *LRU[K, V]) moveToFront(n *node[K, V]) {
	c.unlink(n)
	c.addToFront(n)
}

func (c *LRU[K, V]) addToFront(n *node[K, V]) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU[K, V]) unlink(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *LRU[K, V]) remove(n *node[K, V]) {
	c.unlink(n)
	delete(c.items, n.key)
}
