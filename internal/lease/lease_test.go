// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := newRedisLocker(client, RedisConfig{Addr: mr.Addr(), TTL: ttl, Owner: "node-a"})
	t.Cleanup(func() { _ = l.Close() })
	return mr, l
}

func TestRedisLockerExclusive(t *testing.T) {
	ctx := context.Background()
	mr, l := setupMiniRedis(t, 10*time.Second)

	first, ok, err := l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("meetbot:lease:meeting:m1"))
	assert.Equal(t, 10*time.Second, mr.TTL("meetbot:lease:meeting:m1"))

	_, ok, err = l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail while held")

	other, ok, err := l.TryAcquire(ctx, "m2")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("meetbot:lease:meeting:m1"))

	_, ok, err = l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaseRenewExtendsTTL(t *testing.T) {
	ctx := context.Background()
	mr, l := setupMiniRedis(t, 10*time.Second)

	ls, ok, err := l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(7 * time.Second)
	require.NoError(t, ls.Renew(ctx))
	assert.Equal(t, 10*time.Second, mr.TTL(ls.Key()))
}

func TestRedisLeaseExpiredIsNotHeld(t *testing.T) {
	ctx := context.Background()
	mr, l := setupMiniRedis(t, 5*time.Second)

	ls, ok, err := l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)
	assert.ErrorIs(t, ls.Renew(ctx), ErrNotHeld)

	// Another owner took over; the stale holder must not delete its key.
	taken, ok, err := l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, ls.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists(taken.Key()))
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := NewRedisLocker(ctx, RedisConfig{Addr: addr})
	require.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	a, ok, err := l.TryAcquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, _ = l.TryAcquire(ctx, "m1")
	assert.False(t, ok)

	require.NoError(t, a.Renew(ctx))
	require.NoError(t, a.Release(ctx))
	assert.ErrorIs(t, a.Release(ctx), ErrNotHeld)

	_, ok, _ = l.TryAcquire(ctx, "m1")
	assert.True(t, ok)
}

func TestKeepAliveStopsOnLoss(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	a, _, _ := l.TryAcquire(ctx, "m1")
	require.NoError(t, a.Release(ctx))

	err := KeepAlive(ctx, a, time.Millisecond)
	assert.ErrorIs(t, err, ErrNotHeld)
}
