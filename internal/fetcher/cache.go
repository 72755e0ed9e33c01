package fetcher

import (
	"container/list"
	"sync"
	"time"

	"github.com/sdpower/ccstatusbar-go/internal/types"
)

const (
	DefaultCacheTTL        = 60 * time.Second
	DefaultCacheMaxEntries = 5
)

type cacheEntry struct {
	key       string
	record    types.UsageRecord
	expiresAt time.Time
}

// Cache holds recent records keyed by the exact source URL. Eviction is by
// insertion order, not access order; reads never extend an entry's life.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	order      *list.List
	entries    map[string]*list.Element
	now        func() time.Time
}

func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// TTL is the lifetime applied when Put is given a non-positive ttl.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns a copy of the record for key. Entries at or past their expiry
// are dropped and reported absent.
func (c *Cache) Get(key string) (types.UsageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return types.UsageRecord{}, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.remove(el)
		return types.UsageRecord{}, false
	}
	return entry.record.Clone(), true
}

// Put stores a copy of rec. When the cache is full the oldest inserted
// entry is evicted first.
func (c *Cache) Put(key string, rec types.UsageRecord, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	for c.order.Len() >= c.maxEntries {
		c.remove(c.order.Front())
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:       key,
		record:    rec.Clone(),
		expiresAt: c.now().Add(ttl),
	})
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len counts stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys lists keys oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry).key)
	}
	return keys
}

func (c *Cache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}
