package digestcache

import (
	"container/list"
	"sync"
	"time"
)

// LocalLRU is a small in-memory LRU cache with per-entry TTL, used as the first tier
// in front of Redis. Safe for concurrent use.
type LocalLRU struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List               // front = most-recently used
	items map[string]*list.Element // key -> element
	now   func() time.Time
}

type lruEntry struct {
	key    string
	value  []byte
	expiry time.Time // zero means no expiry
}

// LocalLRUConfig groups constructor options.
type LocalLRUConfig struct {
	Capacity int
	Now      func() time.Time
}

// NewLocalLRU creates a new LocalLRU. Capacity defaults to 256.
func NewLocalLRU(cfg LocalLRUConfig) *LocalLRU {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 256
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &LocalLRU{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
		now:   nowFn,
	}
}

// Get returns the value for key if present and not expired.
func (c *LocalLRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		return nil, false
	}
	ent, ok := el.Value.(*lruEntry)
	if !ok || c.isExpired(ent) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return ent.value, true
}

// Set inserts or updates a value. ttl <= 0 means no expiration.
func (c *LocalLRU) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	if el, found := c.items[key]; found {
		if ent, ok := el.Value.(*lruEntry); ok {
			ent.value = value
			ent.expiry = exp
			c.ll.MoveToFront(el)
			return
		}
		c.removeElement(el)
	}

	c.items[key] = c.ll.PushFront(&lruEntry{key: key, value: value, expiry: exp})
	for c.ll.Len() > c.cap {
		back := c.ll.Back()
		if back == nil {
			return
		}
		c.removeElement(back)
	}
}

// Len returns the current number of items in the cache.
func (c *LocalLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// caller must hold c.mu.
func (c *LocalLRU) isExpired(e *lruEntry) bool {
	return !e.expiry.IsZero() && c.now().After(e.expiry)
}

// caller must hold c.mu.
func (c *LocalLRU) removeElement(el *list.Element) {
	c.ll.Remove(el)
	if ent, ok := el.Value.(*lruEntry); ok {
		delete(c.items, ent.key)
	}
}
