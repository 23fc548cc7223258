// Package cache implements the bounded LRU chunk cache of spec.md section
// 4.5: decoded chunks keyed by logical chunk index, concurrent-read safe,
// with single-flight de-duplication so two readers racing for the same
// miss decode it once.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader decodes logical chunk i on a cache miss.
type Loader func(i int) ([]byte, error)

type node struct {
	key   int
	value []byte
	prev  *node
	next  *node
}

// Cache is a fixed-capacity, strict-LRU-on-hit cache of decoded chunk
// buffers. A chunk that is mid-decode (an in-flight miss) is represented
// only in the singleflight group, never partially in the LRU list, so it
// can't be evicted while being produced.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	index    map[int]*node
	head     *node // most recently used
	tail     *node // least recently used
	group    singleflight.Group
	hits     uint64
	misses   uint64
}

// New creates a cache holding at most capacity decoded chunks.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{capacity: capacity, index: make(map[int]*node)}
}

// Get returns the decoded bytes for chunk i, loading and caching it via
// load on a miss. Concurrent Get calls for the same i share one load.
func (c *Cache) Get(i int, load Loader) ([]byte, error) {
	c.mu.RLock()
	if n, ok := c.index[i]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		c.touch(n)
		c.hits++
		c.mu.Unlock()
		return n.value, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(keyOf(i), func() (any, error) {
		// Re-check: another goroutine may have populated the cache between
		// our RUnlock above and acquiring the singleflight key.
		c.mu.RLock()
		if n, ok := c.index[i]; ok {
			c.mu.RUnlock()
			return loadResult{data: n.value}, nil
		}
		c.mu.RUnlock()

		data, err := load(i)
		if err != nil {
			// A chunk that fails to decode (e.g. ChecksumError) is not
			// cached, but its partially decoded bytes are still handed back
			// to the caller instead of being discarded.
			return loadResult{data: data, err: err}, nil
		}
		c.mu.Lock()
		c.insert(i, data)
		c.misses++
		c.mu.Unlock()
		return loadResult{data: data}, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(loadResult)
	return r.data, r.err
}

// loadResult lets a failed load still carry partially decoded bytes through
// singleflight.Group.Do, whose error return would otherwise discard them.
type loadResult struct {
	data []byte
	err  error
}

// Invalidate drops chunk i from the cache, if present (used after a delta
// overlay write changes its contents).
func (c *Cache) Invalidate(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.index[i]; ok {
		c.unlink(n)
		delete(c.index, i)
	}
}

// Stats reports cumulative hit/miss counters, for tests and diagnostics.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func keyOf(i int) string {
	// singleflight keys on strings; a chunk index space in the billions
	// still fits comfortably, and this avoids allocating a map[int]*call.
	const digits = "0123456789"
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = digits[i%10]
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// insert adds a freshly-decoded chunk at the front, evicting the tail if
// over capacity. Caller holds c.mu.
func (c *Cache) insert(i int, data []byte) {
	if existing, ok := c.index[i]; ok {
		existing.value = data
		c.touch(existing)
		return
	}
	n := &node{key: i, value: data}
	c.index[i] = n
	c.pushFront(n)
	if len(c.index) > c.capacity {
		victim := c.tail
		if victim != nil {
			c.unlink(victim)
			delete(c.index, victim.key)
		}
	}
}

func (c *Cache) touch(n *node) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *Cache) pushFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else if c.head == n {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
