package decoder

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/ChuLiYu/slidetiles/internal/metrics"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/golang/groupcache/lru"
)

// DefaultCacheEntries bounds the shared decode cache.
const DefaultCacheEntries = 1000

// ContentHash is the 32-bit FNV-1a hash of every byte of b, in order.
func ContentHash(b []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(b)
	return h.Sum32()
}

// CacheKey identifies a decoded block: the codec that produced it and the
// content hash of the compressed input.
type CacheKey struct {
	Codec types.CodecID
	Hash  uint32
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%08x", k.Codec, k.Hash)
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// BlockCache is a count-bounded LRU of decoded blocks, safe for concurrent use.
// Values are shared; callers must copy before handing them out.
type BlockCache struct {
	mu        sync.Mutex
	lru       *lru.Cache
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
	metrics   *metrics.Collector
}

// NewBlockCache creates a cache holding at most maxEntries blocks
// (DefaultCacheEntries when maxEntries <= 0).
func NewBlockCache(maxEntries int, m *metrics.Collector) *BlockCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	c := &BlockCache{
		lru:      lru.New(maxEntries),
		capacity: maxEntries,
		metrics:  m,
	}
	c.lru.OnEvicted = c.onEvicted
	return c
}

// onEvicted runs under c.mu, from lru.Add or lru.RemoveOldest.
func (c *BlockCache) onEvicted(lru.Key, interface{}) {
	c.evictions++
	c.metrics.RecordCacheEviction()
}

// Get returns the block stored under key and marks it most recently used.
func (c *BlockCache) Get(key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		c.metrics.RecordCacheMiss()
		return nil, false
	}
	c.hits++
	c.metrics.RecordCacheHit()
	return v.([]byte), true
}

// Add stores block under key, evicting the least recently used entry when full.
func (c *BlockCache) Add(key CacheKey, block []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, block)
	c.metrics.SetCacheEntries(c.lru.Len())
}

// Len returns the number of cached blocks.
func (c *BlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops every entry. Counters are kept.
func (c *BlockCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.OnEvicted = nil
	c.lru.Clear()
	c.lru.OnEvicted = c.onEvicted
	c.metrics.SetCacheEntries(0)
}

// Stats returns a snapshot of the cache counters.
func (c *BlockCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Len:       c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
