package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreContract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) Store {
		store, _ := newMiniRedisStore(t)
		return store
	})
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := newMiniRedisStore(t, WithRedisPrefix("test:"), WithRedisTTL(time.Hour))

	require.NoError(t, store.Append(ctx, "abc", NewMessage(RoleUser, "hi")))

	assert.True(t, mr.Exists("test:thread:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:thread:abc"))

	items, err := mr.List("test:thread:abc")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"content":"hi"`)
}

func TestRedisStoreListThreads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := newMiniRedisStore(t, WithRedisTTL(time.Minute))

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, store.Append(ctx, "first", NewMessage(RoleUser, "q")))
	require.NoError(t, store.Append(ctx, "second", NewMessage(RoleUser, "q"), NewMessage(RoleAssistant, "a")))

	threads, err := store.ListThreads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "second", threads[0].ID)
	assert.Equal(t, int64(2), threads[0].MessageCount)
	assert.Equal(t, "first", threads[1].ID)

	mr.FastForward(2 * time.Minute)

	threads, err = store.ListThreads(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestRedisStoreThreadNamedLikeIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := newMiniRedisStore(t)

	for _, id := range []string{"index", "threads", "t1"} {
		require.NoError(t, store.Append(ctx, id, NewMessage(RoleUser, "q"), NewMessage(RoleAssistant, "a")), id)
	}
	for _, id := range []string{"index", "threads", "t1"} {
		got, err := store.Load(ctx, id)
		require.NoError(t, err, id)
		assert.Len(t, got, 2, id)
	}

	assert.True(t, mr.Exists("genie-router:threads"))
	assert.True(t, mr.Exists("genie-router:thread:threads"))

	threads, err := store.ListThreads(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, threads, 3)
}
