package courier

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is a stored successful response.
type CacheEntry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ExpiresAt  time.Time
}

// Cache is the pluggable response cache consulted for requests whose cache
// directive admits it.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheCondition decides whether a request is cacheable at all. The
// per-call CacheModeForce directive overrides a false answer;
// CacheModeNoStore overrides a true one.
type CacheCondition func(req *Request) bool

// DefaultCacheCondition caches GET requests only.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == MethodGet
}

// DefaultCacheKeyFunc keys entries by method and resolved URL.
func DefaultCacheKeyFunc(req *Request) string {
	if req.URL == nil {
		return req.Method.String() + ":"
	}

	var buf []byte
	buf = append(buf, req.Method.String()...)
	buf = append(buf, ':')
	buf = append(buf, req.URL.String()...)

	return string(buf)
}

// MemoryCache is a sharded in-memory Cache. Sharding keeps lock contention
// low when many calls share one pipeline.
type MemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewMemoryCache creates a cache with 16 shards.
func NewMemoryCache() *MemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &MemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *MemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the entry for key if present and not expired. Expired
// entries are dropped on access.
func (c *MemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

// Set stores an entry under key for ttl.
func (c *MemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.ExpiresAt = time.Now().Add(ttl)
	shard.store[key] = entry
}

// Delete removes the entry under key.
func (c *MemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes every entry.
func (c *MemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// cacheReadAllowed and cacheWriteAllowed translate the per-call directive
// and the pipeline condition into the two cache decisions Execute makes.
func (p *Pipeline) cacheReadAllowed(req *Request) bool {
	if p.cache == nil {
		return false
	}
	switch req.Cache {
	case CacheModeNoStore, CacheModeReload:
		return false
	case CacheModeForce:
		return true
	default:
		return p.cacheCondition(req)
	}
}

func (p *Pipeline) cacheWriteAllowed(req *Request) bool {
	if p.cache == nil {
		return false
	}
	switch req.Cache {
	case CacheModeNoStore:
		return false
	case CacheModeForce, CacheModeReload:
		return true
	default:
		return p.cacheCondition(req)
	}
}

func newCacheEntry(resp *Response) *CacheEntry {
	return &CacheEntry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       append([]byte(nil), resp.Body...),
	}
}

func responseFromCache(entry *CacheEntry) *Response {
	resp := &Response{
		StatusCode: entry.StatusCode,
		Status:     fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		Header:     entry.Header.Clone(),
		Body:       append([]byte(nil), entry.Body...),
	}
	resp.decodeValue()
	return resp
}
