package context

import (
	"container/list"
	"sync"
	"time"

	"github.com/docleaai/doclea/internal/config"
)

// defaultMaxEntries and defaultTTL apply when [config.ContextCacheConfig] is
// left at its zero value.
const (
	defaultMaxEntries = 200
	defaultTTL        = 5 * time.Minute
)

// cacheEntry is the value stored in [Cache]'s LRU list.
type cacheEntry struct {
	key       string
	result    *Result
	expiresAt time.Time
}

// Cache is the context builder's bounded, TTL-expiring LRU cache, keyed by
// [Fingerprint]. The zero value is not usable; construct with [NewCache].
//
// Cache itself does not provide the at-most-one-build-per-fingerprint
// guarantee — that is [Builder]'s responsibility via a singleflight group —
// it only stores and evicts completed results.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	items      map[string]*list.Element
	now        func() time.Time
}

// NewCache constructs a Cache from cfg, applying defaults for zero fields.
func NewCache(cfg config.ContextCacheConfig) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the cached result for key, or (nil, false) if absent or
// expired. A hit moves the entry to the front of the LRU list.
func (c *Cache) Get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.result, true
}

// Put stores result under key, refreshing its TTL, and evicts the least
// recently used entry whenever the cache exceeds maxEntries.
func (c *Cache) Put(key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.expiresAt = expiresAt
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, result: result, expiresAt: expiresAt})
	c.items[key] = el

	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Reset clears every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// Len reports the number of entries currently cached, including expired
// ones not yet evicted by a Get.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
