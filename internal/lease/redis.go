// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/metrics"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Owner    string
}

// Only the token holder may extend or delete a key.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker stores leases as SET NX PX keys.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
	logger zerolog.Logger
}

// NewRedisLocker connects and pings Redis.
func NewRedisLocker(ctx context.Context, cfg RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisLocker(client, cfg), nil
}

func newRedisLocker(client *redis.Client, cfg RedisConfig) *RedisLocker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := &RedisLocker{
		client: client,
		ttl:    ttl,
		owner:  cfg.Owner,
		logger: xlog.WithComponent("lease"),
	}
	l.logger.Info().Str("addr", cfg.Addr).Dur("ttl", ttl).Str(xlog.FieldEvent, "lease.redis_connected").
		Msg("using redis meeting leases")
	return l
}

// TTL is the lease lifetime without renewal.
func (l *RedisLocker) TTL() time.Duration { return l.ttl }

func (l *RedisLocker) TryAcquire(ctx context.Context, meetingID string) (Lease, bool, error) {
	key := keyFor(meetingID)
	tok := newToken(l.owner)
	ok, err := l.client.SetNX(ctx, key, tok, l.ttl).Result()
	if err != nil {
		metrics.IncLeaseOp("acquire", "error")
		return nil, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		metrics.IncLeaseOp("acquire", "busy")
		return nil, false, nil
	}
	metrics.IncLeaseOp("acquire", "ok")
	return &redisLease{locker: l, key: key, token: tok}, true, nil
}

func (l *RedisLocker) Close() error { return l.client.Close() }

// Ping reports whether Redis answers.
func (l *RedisLocker) Ping(ctx context.Context) error { return l.client.Ping(ctx).Err() }

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (rl *redisLease) Key() string { return rl.key }

func (rl *redisLease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, rl.locker.client, []string{rl.key}, rl.token, rl.locker.ttl.Milliseconds()).Int()
	return rl.result("renew", n, err)
}

func (rl *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, rl.locker.client, []string{rl.key}, rl.token).Int()
	return rl.result("release", n, err)
}

func (rl *redisLease) result(op string, n int, err error) error {
	switch {
	case err != nil && !errors.Is(err, redis.Nil):
		metrics.IncLeaseOp(op, "error")
		return fmt.Errorf("%s lease %s: %w", op, rl.key, err)
	case n == 0:
		metrics.IncLeaseOp(op, "lost")
		rl.locker.logger.Warn().Str("key", rl.key).Str(xlog.FieldEvent, "lease.lost").Msg("lease no longer held")
		return ErrNotHeld
	default:
		metrics.IncLeaseOp(op, "ok")
		return nil
	}
}
