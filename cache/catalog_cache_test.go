package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*CatalogCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewCatalogCache(client, 30*time.Second)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCatalogCacheDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, c := range []*CatalogCache{nil, NewCatalogCache(nil, time.Minute)} {
		require.False(t, c.Enabled())

		require.NoError(t, c.Set(ctx, 1, []byte(`[]`)))
		data, ok, err := c.Get(ctx, 1)
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, data)

		require.NoError(t, c.Invalidate(ctx))
		require.NoError(t, c.Close())
	}
}

func TestCatalogCacheHitAndMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestCache(t)
	require.True(t, c.Enabled())

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, 1, []byte(`[{"id":"a"}]`)))
	data, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[{"id":"a"}]`, string(data))

	// another catalog version never sees this body
	_, ok, err = c.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, 30*time.Second, mr.TTL(CatalogListKey+":1"))
	mr.FastForward(31 * time.Second)
	_, ok, err = c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalogCacheInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("unrelated", "keep"))

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, c.Set(ctx, v, []byte(`[]`)))
	}
	require.NoError(t, c.Invalidate(ctx))

	for v := uint64(1); v <= 3; v++ {
		_, ok, err := c.Get(ctx, v)
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.True(t, mr.Exists("unrelated"))

	// nothing left to delete
	require.NoError(t, c.Invalidate(ctx))
}

func TestCatalogCacheLateWriteOfOldSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, _ := newTestCache(t)

	// a reader took a snapshot at version 1, the catalog moved to version 2
	// and the reader stored its body only afterwards
	require.NoError(t, c.Set(ctx, 1, []byte(`[]`)))

	_, ok, err := c.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalogCacheRedisDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, mr := newTestCache(t)
	mr.Close()

	_, ok, err := c.Get(ctx, 1)
	require.Error(t, err)
	require.False(t, ok)
	require.Error(t, c.Set(ctx, 1, []byte(`[]`)))
}
