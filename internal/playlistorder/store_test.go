package playlistorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecrate/internal/utils"
)

func newTestStore(t *testing.T, cache Cache) *OrderStore {
	t.Helper()
	nop := zerolog.Nop()
	store, err := NewOrderStore(filepath.Join(t.TempDir(), "playlist_orders"), cache, &nop)
	require.NoError(t, err)
	return store
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestOrderStore_SaveGetDelete(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	ids, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, ids, "absent order reads as empty")

	require.NoError(t, store.Save(ctx, 7, []int64{3, 1, 2}))
	ids, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)

	raw, err := os.ReadFile(filepath.Join(store.root, "7.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[3,1,2]", string(raw))

	require.NoError(t, store.Save(ctx, 7, []int64{2}))
	ids, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids, "save overwrites")

	removed, err := store.Delete(ctx, 7)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, 7)
	require.NoError(t, err)
	assert.False(t, removed, "deleting an absent order is not an error")

	entries, err := os.ReadDir(store.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestOrderStore_EmptyOrderIndistinguishableFromAbsent(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 1, nil))
	saved, err := store.Get(ctx, 1)
	require.NoError(t, err)

	absent, err := store.Get(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, absent, saved)
}

func TestOrderStore_RejectsInvalidIDs(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	err := store.Save(ctx, 0, []int64{1})
	assert.True(t, utils.IsKind(err, utils.KindInvalidInput))

	_, err = store.Get(ctx, -4)
	assert.True(t, utils.IsKind(err, utils.KindInvalidInput))

	_, err = store.Delete(ctx, -1)
	assert.True(t, utils.IsKind(err, utils.KindInvalidInput))
}

func TestOrderStore_CorruptFile(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "9.json"), []byte("{not json"), 0644))

	_, err := store.Get(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindGeneric))
}

func TestOrderStore_List(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 12, []int64{1}))
	require.NoError(t, store.Save(ctx, 3, []int64{2}))
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "abc.json"), []byte("[]"), 0644))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 12}, ids)
}

func TestOrderStore_RedisCacheReadThrough(t *testing.T) {
	cache, mr := newRedisCache(t)
	store := newTestStore(t, cache)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 5, []int64{10, 20}))
	assert.False(t, mr.Exists("tunecrate:playlist_order:5"), "save invalidates instead of populating")

	ids, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids)
	assert.True(t, mr.Exists("tunecrate:playlist_order:5"), "miss populates the cache")

	// Served from cache even when the file changes behind the store's back
	require.NoError(t, os.WriteFile(filepath.Join(store.root, "5.json"), []byte("[99]"), 0644))
	ids, err = store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids)

	require.NoError(t, store.Save(ctx, 5, []int64{30}))
	ids, err = store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{30}, ids)

	_, err = store.Delete(ctx, 5)
	require.NoError(t, err)
	assert.False(t, mr.Exists("tunecrate:playlist_order:5"))

	ids, err = store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, ids)
}

func TestOrderStore_RedisUnavailableFallsBackToDisk(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	store := newTestStore(t, NewRedisCache(client, time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 8, []int64{4, 5}))
	ids, err := store.Get(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)
}

// racingCache lets a writer replace the order between the disk read and
// the cache fill of a Get
type racingCache struct {
	*RedisCache
	beforeFill func()
}

func (c *racingCache) Fill(ctx context.Context, playlistID, generation int64, songIDs []int64) (bool, error) {
	if c.beforeFill != nil {
		c.beforeFill()
		c.beforeFill = nil
	}
	return c.RedisCache.Fill(ctx, playlistID, generation, songIDs)
}

func TestOrderStore_FillRacingSaveIsDropped(t *testing.T) {
	redisCache, mr := newRedisCache(t)
	cache := &racingCache{RedisCache: redisCache}
	store := newTestStore(t, cache)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 5, []int64{1, 2, 3}))
	cache.beforeFill = func() {
		require.NoError(t, store.Save(ctx, 5, []int64{9, 9, 9}))
	}

	ids, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids, "the read itself saw the older file")
	assert.False(t, mr.Exists("tunecrate:playlist_order:5"), "the stale order is not cached")

	ids, err = store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 9, 9}, ids)

	ids, err = store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 9, 9}, ids, "served from the refreshed cache entry")
}

func TestRedisCache_FillChecksGeneration(t *testing.T) {
	cache, _ := newRedisCache(t)
	ctx := context.Background()

	gen, err := cache.Generation(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, cache.Invalidate(ctx, 3))

	filled, err := cache.Fill(ctx, 3, gen, []int64{1})
	require.NoError(t, err)
	assert.False(t, filled, "generation moved on")
	_, ok, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err = cache.Generation(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	filled, err = cache.Fill(ctx, 3, gen, []int64{1})
	require.NoError(t, err)
	assert.True(t, filled)
	ids, ok, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{1}, ids)
}
