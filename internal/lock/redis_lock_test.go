package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestTryAcquireIsExclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, "test:")
	ctx := context.Background()

	first, ok, err := locker.TryAcquire(ctx, "issue", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "test:issue", first.Key())
	assert.True(t, mr.Exists("test:issue"))

	_, ok, err = locker.TryAcquire(ctx, "issue", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("test:issue"))

	again, ok, err := locker.TryAcquire(ctx, "issue", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, again.Release(ctx))
}

func TestReleaseDoesNotStealForeignLease(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, "")
	ctx := context.Background()

	stale, ok, err := locker.TryAcquire(ctx, "issue", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	current, ok, err := locker.TryAcquire(ctx, "issue", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("issue"), "expired holder must not release the new lease")

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("issue"))
}

func TestTryAcquireReportsRedisErrors(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	_, _, err := NewRedisLocker(client, "").TryAcquire(context.Background(), "issue", time.Minute)
	assert.Error(t, err)
}
