package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisSlotLocker(client, ttl)
}

func TestWithSlotLock_ExclusiveAndReleased(t *testing.T) {
	mr, locker := newLocker(t, 5*time.Second)
	ctx := context.Background()
	doctor := uuid.New()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	err := locker.WithSlotLock(ctx, doctor, start, func(ctx context.Context) error {
		assert.True(t, mr.Exists(slotKey(doctor, start)))

		inner := locker.WithSlotLock(ctx, doctor, start, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		other := locker.WithSlotLock(ctx, doctor, start.Add(30*time.Minute), func(context.Context) error { return nil })
		assert.NoError(t, other, "different slot start is a different key")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(slotKey(doctor, start)))
}

func TestWithSlotLock_PropagatesError(t *testing.T) {
	mr, locker := newLocker(t, time.Second)
	doctor := uuid.New()
	start := time.Now().Truncate(time.Minute)
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), doctor, start, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(slotKey(doctor, start)))
}

func TestWithSlotLock_DoesNotReleaseForeignToken(t *testing.T) {
	mr, locker := newLocker(t, time.Second)
	doctor := uuid.New()
	start := time.Now().Truncate(time.Minute)
	key := slotKey(doctor, start)

	err := locker.WithSlotLock(context.Background(), doctor, start, func(context.Context) error {
		// Simulate expiry and takeover by another instance.
		mr.Del(key)
		require.NoError(t, mr.Set(key, "someone-else"))
		return nil
	})
	require.NoError(t, err)

	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestNoopLocker(t *testing.T) {
	called := false
	err := NoopLocker{}.WithSlotLock(context.Background(), uuid.New(), time.Now(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
