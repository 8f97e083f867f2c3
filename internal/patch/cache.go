// Package patch turns rendered markup into replayable patch functions and
// keeps them in a bounded LRU cache keyed by the exact markup.
package patch

import (
	"sync"
	"sync/atomic"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// DefaultCapacity is the cache size used when none is configured.
const DefaultCapacity = 100

// Cache maps markup to PatchFuncs with strict LRU eviction. Get and Set
// both count as a use.
type Cache struct {
	entries  map[string]*entry
	mutex    sync.Mutex
	capacity int
	// LRU doubly-linked list with sentinel head and tail
	head *entry
	tail *entry

	hits      int64
	misses    int64
	builds    int64
	evictions int64
}

type entry struct {
	key  string
	fn   PatchFunc
	prev *entry
	next *entry
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Builds    int64 `json:"builds"`
	Evictions int64 `json:"evictions"`
}

// NewCache creates a cache holding at most capacity entries. A capacity
// of zero or less is an InvalidConfigError.
func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, kerrors.NewConfigError("patch cache capacity must be greater than zero").
			WithContext("capacity", capacity)
	}

	c := &Cache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		head:     &entry{},
		tail:     &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c, nil
}

// Get returns the PatchFunc cached for markup.
func (c *Cache) Get(markup string) (PatchFunc, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[markup]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	c.moveToFront(e)
	atomic.AddInt64(&c.hits, 1)
	return e.fn, true
}

// Set stores fn for markup, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Set(markup string, fn PatchFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.set(markup, fn)
}

func (c *Cache) set(markup string, fn PatchFunc) {
	if e, ok := c.entries[markup]; ok {
		e.fn = fn
		c.moveToFront(e)
		return
	}

	for len(c.entries) >= c.capacity && c.tail.prev != c.head {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		atomic.AddInt64(&c.evictions, 1)
	}

	e := &entry{key: markup, fn: fn}
	c.entries[markup] = e
	c.addToFront(e)
}

// GetOrBuild returns the cached PatchFunc for markup, building and caching
// it on a miss.
func (c *Cache) GetOrBuild(markup string) (PatchFunc, error) {
	if fn, ok := c.Get(markup); ok {
		return fn, nil
	}

	fn, err := Build(markup)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.builds, 1)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	// Another caller may have built the same markup meanwhile.
	if e, ok := c.entries[markup]; ok {
		c.moveToFront(e)
		return e.fn, nil
	}
	c.set(markup, fn)
	return fn, nil
}

// Contains reports whether markup is cached without touching recency.
func (c *Cache) Contains(markup string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.entries[markup]
	return ok
}

// Keys returns the cached markup from most to least recently used.
func (c *Cache) Keys() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	keys := make([]string, 0, len(c.entries))
	for e := c.head.next; e != c.tail; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mutex.Lock()
	size := len(c.entries)
	c.mutex.Unlock()

	return Stats{
		Size:      size,
		Capacity:  c.capacity,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Builds:    atomic.LoadInt64(&c.builds),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*entry)
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.builds, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// LRU doubly-linked list operations
func (c *Cache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *Cache) moveToFront(e *entry) {
	c.removeFromList(e)
	c.addToFront(e)
}
