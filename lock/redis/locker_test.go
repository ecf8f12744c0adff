package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getpup/migration-orchestrator/lock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "worker-1"), mr
}

func TestAcquire_FailsFastWhileHeld(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()
	key := lock.TenantKey("tenant-1")

	held, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, key, held.Key())
	assert.NotEmpty(t, held.Owner())
	assert.True(t, mr.Exists(key))

	start := time.Now()
	_, err = l.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.Less(t, time.Since(start), time.Second, "contention must not wait")

	require.NoError(t, held.Release(ctx))
	assert.False(t, mr.Exists(key))

	again, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestAcquire_AfterExpiry(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), lock.ErrLeaseLost)
	assert.ErrorIs(t, stale.Release(ctx), lock.ErrLeaseLost)
	assert.True(t, mr.Exists("k"), "stale release must not drop the new owner's lease")

	require.NoError(t, fresh.Release(ctx))
}

func TestRefresh_ExtendsTTL(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	held, err := l.Acquire(ctx, "k", 2*time.Second)
	require.NoError(t, err)

	mr.FastForward(time.Second)
	require.NoError(t, held.Refresh(ctx, 10*time.Second))

	mr.FastForward(5 * time.Second)
	_, err = l.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestAcquire_RedisUnavailable(t *testing.T) {
	l, mr := newTestLocker(t)
	mr.Close()

	_, err := l.Acquire(context.Background(), "k", time.Second)

	require.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrNotAcquired)
}
