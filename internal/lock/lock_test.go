package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerExclusiveUntilReleased(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "someone-else"))
	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "foreign token must not release the lock")

	require.NoError(t, locker.Release(ctx, "k", token))
	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerExpires(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerValidation(t *testing.T) {
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrNotConfigured)

	locker, _ := newLocker(t)
	_, _, err = locker.TryLock(context.Background(), "", time.Second)
	assert.Error(t, err)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.Error(t, err)
}

func TestSweepGuard(t *testing.T) {
	locker, mr := newLocker(t)
	guard := NewSweepGuard(locker, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	release, ok := guard.Acquire(ctx, "billing-sweep")
	require.True(t, ok)
	assert.True(t, mr.Exists("schoolbilling:lock:billing-sweep"))

	_, ok = guard.Acquire(ctx, "billing-sweep")
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("schoolbilling:lock:billing-sweep"))

	_, ok = guard.Acquire(ctx, "billing-sweep")
	assert.True(t, ok)
}

func TestSweepGuardWithoutRedis(t *testing.T) {
	guard := NewSweepGuard(nil, 0, nil)
	assert.False(t, guard.Enabled())

	release, ok := guard.Acquire(context.Background(), "billing-sweep")
	assert.True(t, ok)
	release()
}

func TestSweepGuardDegradesWhenRedisDown(t *testing.T) {
	locker, mr := newLocker(t)
	guard := NewSweepGuard(locker, time.Minute, zaptest.NewLogger(t))
	mr.Close()

	_, ok := guard.Acquire(context.Background(), "billing-sweep")
	assert.True(t, ok)
}
