// Package redis is a core.Cache of verified sessions shared across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lborres/bantay/core"
)

// Ensure Cache implements CacheWithStats
var _ core.CacheWithStats = (*Cache)(nil)

const defaultPrefix = "bantay:"

// Cache stores sessions as JSON under prefix+"session:"+tokenHash and keeps
// a set of a user's token hashes under prefix+"user:"+userID.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration

	hits    int64
	misses  int64
	sets    int64
	deletes int64
}

type Option func(*Cache)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

func New(client redis.UniversalClient, config core.CacheConfig, opts ...Option) *Cache {
	if config.TTL == 0 {
		config.TTL = 5 * time.Minute
	}
	c := &Cache{client: client, prefix: defaultPrefix, ttl: config.TTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// record carries the token hash, which core.Session hides from JSON.
type record struct {
	core.Session
	TokenHash string `json:"tokenHash"`
}

func (c *Cache) sessionKey(tokenHash string) string { return c.prefix + "session:" + tokenHash }
func (c *Cache) userKey(userID string) string       { return c.prefix + "user:" + userID }

func (c *Cache) Get(ctx context.Context, tokenHash string) (*core.Session, error) {
	raw, err := c.client.Get(ctx, c.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&c.misses, 1)
		return nil, core.ErrCacheNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// a bad entry is a miss
		c.client.Del(ctx, c.sessionKey(tokenHash))
		atomic.AddInt64(&c.misses, 1)
		return nil, core.ErrCacheNotFound
	}
	atomic.AddInt64(&c.hits, 1)
	session := rec.Session
	session.TokenHash = rec.TokenHash
	return &session, nil
}

func (c *Cache) Set(ctx context.Context, tokenHash string, session *core.Session) error {
	raw, err := json.Marshal(record{Session: *session, TokenHash: tokenHash})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	userKey := c.userKey(session.UserID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.sessionKey(tokenHash), raw, c.ttl)
		pipe.SAdd(ctx, userKey, tokenHash)
		pipe.Expire(ctx, userKey, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	atomic.AddInt64(&c.sets, 1)
	return nil
}

// Delete leaves the hash in the user's set; DeleteUser tolerates stale members.
func (c *Cache) Delete(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, c.sessionKey(tokenHash)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	atomic.AddInt64(&c.deletes, 1)
	return nil
}

func (c *Cache) DeleteUser(ctx context.Context, userID string) error {
	userKey := c.userKey(userID)
	hashes, err := c.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, c.sessionKey(h))
	}
	keys = append(keys, userKey)
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	atomic.AddInt64(&c.deletes, n)
	return nil
}

// Clear removes every key under the prefix.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := flush(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Stats reports this process's counters; Size is not tracked.
func (c *Cache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Sets:    atomic.LoadInt64(&c.sets),
		Deletes: atomic.LoadInt64(&c.deletes),
		TTL:     c.ttl,
	}
}

// Health pings the server.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
