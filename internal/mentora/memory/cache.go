package memory

import (
	"container/list"
	"log/slog"
	"time"
)

// Cache defaults, applied when the corresponding CacheConfig field is zero.
const (
	DefaultCacheCapacity = 256
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheMaxBytes = 8 << 20
)

// CacheConfig bounds the memory cache.
type CacheConfig struct {
	// Capacity is the maximum number of entries (LRU bound).
	Capacity int
	// TTL is the entry lifetime; expired entries miss on read.
	TTL time.Duration
	// MaxBytes is the approximate total-size ceiling. When exceeded,
	// expired entries are purged first, then LRU entries, until under.
	MaxBytes int64
}

// cacheEntry is one cached per-user memory snapshot.
type cacheEntry struct {
	user     string
	payload  *UserMemory
	cachedAt time.Time
	size     int64
}

// Cache is an LRU+TTL cache of per-user memory snapshots fronting durable
// reads. All operations are synchronous, non-blocking, and O(1) except the
// size-ceiling purge, which touches at most the entries it evicts.
//
// Cache is safe for concurrent use only under its owner's locking — the
// Manager serializes access per call, so the cache itself stays lock-free.
// now is injectable for TTL tests.
type Cache struct {
	capacity int
	ttl      time.Duration
	maxBytes int64

	ll         *list.List               // front = most recently used
	entries    map[string]*list.Element // user → element; element value is *cacheEntry
	totalBytes int64

	now func() time.Time
}

// NewCache creates a Cache with the given bounds, applying defaults for
// zero values.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCacheCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultCacheMaxBytes
	}
	return &Cache{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		maxBytes: cfg.MaxBytes,
		ll:       list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached snapshot for user and touches its LRU position.
// Expired entries are removed and miss.
func (c *Cache) Get(user string) (*UserMemory, bool) {
	elem, ok := c.entries[user]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.cachedAt) > c.ttl {
		c.remove(elem)
		return nil, false
	}
	c.ll.MoveToFront(elem)
	return entry.payload, true
}

// Put inserts or replaces the snapshot for user, evicting the
// least-recently-used entry first when at capacity, then enforcing the size
// ceiling.
func (c *Cache) Put(user string, payload *UserMemory) {
	size := payload.ApproxSize()

	if elem, ok := c.entries[user]; ok {
		entry := elem.Value.(*cacheEntry)
		c.totalBytes += size - entry.size
		entry.payload = payload
		entry.cachedAt = c.now()
		entry.size = size
		c.ll.MoveToFront(elem)
		c.enforceSizeCeiling()
		return
	}

	// Evict before admitting, so the capacity bound holds at all times.
	if c.ll.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.ll.PushFront(&cacheEntry{
		user:     user,
		payload:  payload,
		cachedAt: c.now(),
		size:     size,
	})
	c.entries[user] = elem
	c.totalBytes += size
	c.enforceSizeCeiling()
}

// Invalidate drops the entry for user, if present.
func (c *Cache) Invalidate(user string) {
	if elem, ok := c.entries[user]; ok {
		c.remove(elem)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.ll.Len() }

// SizeBytes returns the approximate total size of all cached payloads.
func (c *Cache) SizeBytes() int64 { return c.totalBytes }

// enforceSizeCeiling purges entries until the total size is under the
// ceiling: expired entries first, then least-recently-used entries.
func (c *Cache) enforceSizeCeiling() {
	if c.totalBytes <= c.maxBytes {
		return
	}

	// Pass 1: expired entries, oldest first.
	now := c.now()
	for elem := c.ll.Back(); elem != nil && c.totalBytes > c.maxBytes; {
		prev := elem.Prev()
		if now.Sub(elem.Value.(*cacheEntry).cachedAt) > c.ttl {
			c.remove(elem)
		}
		elem = prev
	}

	// Pass 2: LRU entries.
	for c.totalBytes > c.maxBytes && c.ll.Len() > 0 {
		c.evictOldest()
	}

	slog.Debug("memory cache: size ceiling enforced",
		"entries", c.ll.Len(), "bytes", c.totalBytes, "ceiling", c.maxBytes)
}

// evictOldest removes the least-recently-used entry.
func (c *Cache) evictOldest() {
	if elem := c.ll.Back(); elem != nil {
		c.remove(elem)
	}
}

func (c *Cache) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.ll.Remove(elem)
	delete(c.entries, entry.user)
	c.totalBytes -= entry.size
}
