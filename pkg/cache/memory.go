package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lborres/bantay/core"
)

// Ensure InMemoryCache implements CacheWithStats
var _ core.CacheWithStats = (*InMemoryCache)(nil)

// InMemoryCache keeps verified sessions keyed by token hash.
type InMemoryCache struct {
	cache   map[string]*cachedRecord // key: token hash
	byUser  map[string]map[string]struct{}
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	// counters
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

type cachedRecord struct {
	session  core.Session
	cachedAt time.Time
}

func NewInMemoryCache(c core.CacheConfig) *InMemoryCache {
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxSize == 0 {
		c.MaxSize = 500
	}

	return &InMemoryCache{
		cache:   make(map[string]*cachedRecord),
		byUser:  make(map[string]map[string]struct{}),
		ttl:     c.TTL,
		maxSize: c.MaxSize,
		now:     time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, tokenHash string) (*core.Session, error) {
	c.mu.RLock()
	record, exists := c.cache[tokenHash]
	c.mu.RUnlock()

	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, core.ErrCacheNotFound
	}

	if c.now().Sub(record.cachedAt) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		c.remove(tokenHash)
		return nil, core.ErrCacheNotFound
	}

	atomic.AddInt64(&c.hits, 1)
	session := record.session
	return &session, nil
}

func (c *InMemoryCache) Set(_ context.Context, tokenHash string, session *core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction if full
	if _, replacing := c.cache[tokenHash]; !replacing && len(c.cache) >= c.maxSize {
		for k := range c.cache {
			c.removeLocked(k)
			atomic.AddInt64(&c.evictions, 1)
			break
		}
	}

	c.cache[tokenHash] = &cachedRecord{session: *session, cachedAt: c.now()}
	hashes, ok := c.byUser[session.UserID]
	if !ok {
		hashes = make(map[string]struct{})
		c.byUser[session.UserID] = hashes
	}
	hashes[tokenHash] = struct{}{}

	atomic.AddInt64(&c.sets, 1)
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, tokenHash string) error {
	if c.remove(tokenHash) {
		atomic.AddInt64(&c.deletes, 1)
	}
	return nil
}

func (c *InMemoryCache) DeleteUser(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash := range c.byUser[userID] {
		if c.removeLocked(hash) {
			atomic.AddInt64(&c.deletes, 1)
		}
	}
	delete(c.byUser, userID)
	return nil
}

func (c *InMemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedRecord)
	c.byUser = make(map[string]map[string]struct{})
	return nil
}

func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *InMemoryCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Deletes:   atomic.LoadInt64(&c.deletes),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}

func (c *InMemoryCache) remove(tokenHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(tokenHash)
}

func (c *InMemoryCache) removeLocked(tokenHash string) bool {
	record, ok := c.cache[tokenHash]
	if !ok {
		return false
	}
	delete(c.cache, tokenHash)
	if hashes := c.byUser[record.session.UserID]; hashes != nil {
		delete(hashes, tokenHash)
		if len(hashes) == 0 {
			delete(c.byUser, record.session.UserID)
		}
	}
	return true
}
