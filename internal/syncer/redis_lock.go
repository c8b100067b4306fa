package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// inProgressTTL bounds how long a crashed process can hold a fetch lock.
const inProgressTTL = 5 * time.Minute

// RedisLocker is the multi-process FetchLocker. Two keys per
// (tenant, resource): a lock key held for the duration of the fetch with a
// safety TTL, and a rate key whose TTL is the minimum fetch interval. Redis
// errors fail open so a degraded Redis never stops syncing.
type RedisLocker struct {
	client      *redis.Client
	minInterval time.Duration
	logger      *slog.Logger
}

func NewRedisLocker(client *redis.Client, minInterval time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{client: client, minInterval: minInterval, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, tenantID, resource string) (func(), SkipReason, bool) {
	lockKey := "fetchlock:" + tenantID + ":" + resource
	rateKey := "fetchrate:" + tenantID + ":" + resource

	locked, err := l.client.SetNX(ctx, lockKey, "1", inProgressTTL).Result()
	if err != nil {
		l.logger.Warn("fetch lock unavailable, proceeding unlocked", "tenant", tenantID, "resource", resource, "error", err)
		return func() {}, SkipNone, true
	}
	if !locked {
		return nil, SkipInProgress, false
	}

	fresh, err := l.client.SetNX(ctx, rateKey, "1", l.minInterval).Result()
	if err != nil {
		l.logger.Warn("fetch rate key unavailable, proceeding", "tenant", tenantID, "resource", resource, "error", err)
		fresh = true
	}
	if !fresh {
		l.client.Del(ctx, lockKey)
		return nil, SkipRateLimited, false
	}

	release := func() {
		if err := l.client.Del(context.Background(), lockKey).Err(); err != nil {
			l.logger.Warn("fetch lock release failed", "tenant", tenantID, "resource", resource, "error", err)
		}
	}
	return release, SkipNone, true
}
