package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lborres/bantay/core"
)

func newSession(id, userID, hash string) *core.Session {
	now := time.Now()
	return &core.Session{ID: id, UserID: userID, TokenHash: hash, ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}
}

func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(core.CacheConfig{TTL: time.Minute, MaxSize: 10})

	if err := cache.Set(ctx, "hash1", newSession("s1", "u1", "hash1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, "hash1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "s1" || got.UserID != "u1" {
		t.Errorf("Get() = %+v", got)
	}

	// Returned sessions are copies.
	got.UserID = "mutated"
	again, _ := cache.Get(ctx, "hash1")
	if again.UserID != "u1" {
		t.Error("cached session was mutated through a returned pointer")
	}

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, core.ErrCacheNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrCacheNotFound", err)
	}
}

// Requirement: entries older than the TTL are treated as misses and dropped.
func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(core.CacheConfig{TTL: time.Minute})
	now := time.Now()
	cache.now = func() time.Time { return now }

	_ = cache.Set(ctx, "hash1", newSession("s1", "u1", "hash1"))
	now = now.Add(2 * time.Minute)

	if _, err := cache.Get(ctx, "hash1"); !errors.Is(err, core.ErrCacheNotFound) {
		t.Fatalf("Get() after TTL error = %v, want ErrCacheNotFound", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestInMemoryCache_DeleteUser(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(core.CacheConfig{})

	_ = cache.Set(ctx, "a1", newSession("s1", "alice", "a1"))
	_ = cache.Set(ctx, "a2", newSession("s2", "alice", "a2"))
	_ = cache.Set(ctx, "b1", newSession("s3", "bob", "b1"))

	if err := cache.DeleteUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	for _, hash := range []string{"a1", "a2"} {
		if _, err := cache.Get(ctx, hash); err == nil {
			t.Errorf("session %s still cached", hash)
		}
	}
	if _, err := cache.Get(ctx, "b1"); err != nil {
		t.Errorf("bob's session was removed: %v", err)
	}
	if stats := cache.Stats(); stats.Deletes != 2 {
		t.Errorf("Deletes = %d, want 2", stats.Deletes)
	}
}

func TestInMemoryCache_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(core.CacheConfig{MaxSize: 2})

	_ = cache.Set(ctx, "h1", newSession("s1", "u", "h1"))
	_ = cache.Set(ctx, "h2", newSession("s2", "u", "h2"))
	_ = cache.Set(ctx, "h3", newSession("s3", "u", "h3"))

	stats := cache.Stats()
	if stats.Size != 2 || stats.Evictions != 1 {
		t.Errorf("Stats() = %+v, want size 2 and 1 eviction", stats)
	}

	// Overwriting an existing key does not evict.
	_ = cache.Set(ctx, "h3", newSession("s3", "u", "h3"))
	if cache.Stats().Evictions != 1 {
		t.Error("overwrite evicted an entry")
	}
}

func TestInMemoryCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(core.CacheConfig{})

	if err := cache.Delete(ctx, "nonexistent"); err != nil {
		t.Errorf("Delete of non-existent key should not error, got %v", err)
	}

	_ = cache.Set(ctx, "h1", newSession("s1", "u", "h1"))
	_ = cache.Set(ctx, "h2", newSession("s2", "u", "h2"))
	_ = cache.Delete(ctx, "h1")
	if cache.Len() != 1 {
		t.Errorf("Len() = %d after Delete, want 1", cache.Len())
	}

	_ = cache.Clear(ctx)
	if cache.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", cache.Len())
	}
}
