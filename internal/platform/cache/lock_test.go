package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestLockerIsExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	key := internalShared.RecalcLockKey(3)

	release, ok, err := locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(key))

	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockerReleaseKeepsForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	key := internalShared.RecalcLockKey(4)

	release, ok, err := locker.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists(key))
}

func TestNilLockerAlwaysAcquires(t *testing.T) {
	var locker *Locker
	release, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(context.Background()))
}
