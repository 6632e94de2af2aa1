package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryCache()
	store := NewBlockStore(kv)

	require.NoError(t, store.Block(ctx, "203.0.113.7", "test", time.Hour))

	assert.True(t, store.IsBlocked(ctx, "203.0.113.7"))
	assert.False(t, store.IsBlocked(ctx, "203.0.113.8"))

	entry, ok := store.Entry(ctx, "203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, "test", entry.Reason)
	assert.True(t, entry.ExpiresAt.After(entry.BlockedAt))
}

func TestBlockStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryCache()
	store := NewBlockStore(kv)

	require.NoError(t, store.Block(ctx, "203.0.113.9", "short", 50*time.Millisecond))
	assert.True(t, store.IsBlocked(ctx, "203.0.113.9"))

	// Force the cache entry past its TTL.
	kv.Expire(blockedIPPrefix+"203.0.113.9", time.Now().Add(-time.Second))
	time.Sleep(60 * time.Millisecond)

	assert.False(t, store.IsBlocked(ctx, "203.0.113.9"),
		"expiry is enforced by the cache TTL, not by active sweeping")
}

func TestBlockStore_Unblock(t *testing.T) {
	ctx := context.Background()
	store := NewBlockStore(NewMemoryCache())

	require.NoError(t, store.Block(ctx, "eve", "creds", time.Hour))
	assert.True(t, store.IsBlocked(ctx, "eve"))

	require.NoError(t, store.Unblock(ctx, "eve"))
	assert.False(t, store.IsBlocked(ctx, "eve"))
}

func TestBlockStore_UserVsIPKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryCache()
	store := NewBlockStore(kv)

	require.NoError(t, store.Block(ctx, "198.51.100.4", "ip block", time.Hour))
	require.NoError(t, store.Block(ctx, "mallory", "user block", time.Hour))

	ipKeys, err := kv.Keys(ctx, blockedIPPrefix)
	require.NoError(t, err)
	userKeys, err := kv.Keys(ctx, blockedUserPrefix)
	require.NoError(t, err)

	assert.Equal(t, []string{blockedIPPrefix + "198.51.100.4"}, ipKeys)
	assert.Equal(t, []string{blockedUserPrefix + "mallory"}, userKeys)
}

func TestBlockStore_ReloadFromCache(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryCache()

	first := NewBlockStore(kv)
	require.NoError(t, first.Block(ctx, "203.0.113.20", "persisted", time.Hour))
	require.NoError(t, first.Block(ctx, "trudy", "persisted", time.Hour))

	// A fresh store over the same cache starts empty, then reloads.
	second := NewBlockStore(kv)
	assert.Equal(t, 0, second.Count())

	require.NoError(t, second.Reload(ctx))
	assert.Equal(t, 2, second.Count())
	assert.True(t, second.IsBlocked(ctx, "203.0.113.20"))
	assert.True(t, second.IsBlocked(ctx, "trudy"))
}

func TestMemoryCache_SetNX(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryCache()

	ok, err := kv.SetNX(ctx, "lock", "a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "lock", "b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second acquisition must fail while the key lives")

	kv.Expire("lock", time.Now().Add(-time.Second))
	ok, err = kv.SetNX(ctx, "lock", "c", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "expired key is free to take")
}
