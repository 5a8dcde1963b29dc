package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoreEntry struct {
	Signature string  `json:"signature"`
	Rate      float64 `json:"rate"`
}

func TestMemoryCacheTypedGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "score:a", scoreEntry{Signature: "a", Rate: 0.5}, time.Minute))

	var got scoreEntry
	require.NoError(t, mc.Get(ctx, "score:a", &got))
	assert.Equal(t, scoreEntry{Signature: "a", Rate: 0.5}, got)

	assert.ErrorIs(t, mc.Get(ctx, "score:b", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "validator", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "validator", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "validator"))
	ok, err = mc.TryLock(ctx, "validator", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// the lock namespace does not collide with plain keys
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "validator", &s), ErrCacheMiss)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "candlesense:lock:learning", Key("candlesense:", "lock:learning"))
	assert.Equal(t, "a:b", Key("", "a", ":b:"))
	assert.Equal(t, "", Key())
}
