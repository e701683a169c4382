package lock

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	key := TenantRunKey(snowflake.ID(42))
	require.Equal(t, "invoiceengine:run:42", key)

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Release(ctx, key, "someone-else"))
	_, ok, _ = l.TryLock(ctx, key, time.Minute)
	require.False(t, ok)

	require.NoError(t, l.Release(ctx, key, token))
	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLockerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.nowFn = func() time.Time { return now }

	_, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockersValidateArguments(t *testing.T) {
	ctx := context.Background()
	lockers := []Locker{
		NewMemoryLocker(),
		NewRedisLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})),
	}
	for _, l := range lockers {
		_, _, err := l.TryLock(ctx, "", time.Minute)
		require.ErrorIs(t, err, ErrEmptyKey)
		_, _, err = l.TryLock(ctx, "k", 0)
		require.ErrorIs(t, err, ErrInvalidTTL)
		require.NoError(t, l.Release(ctx, "", ""))
	}
}
