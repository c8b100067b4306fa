package syncer_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

func newRedisLocker(t *testing.T, minInterval time.Duration) (*syncer.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return syncer.NewRedisLocker(client, minInterval, slog.Default()), mr
}

func TestRedisLocker_SerializesSameResource(t *testing.T) {
	l, _ := newRedisLocker(t, 15*time.Second)
	ctx := context.Background()

	release, reason, ok := l.Acquire(ctx, "tenant-a", "incidents")
	require.True(t, ok)
	require.Equal(t, syncer.SkipNone, reason)

	_, reason, ok = l.Acquire(ctx, "tenant-a", "incidents")
	assert.False(t, ok)
	assert.Equal(t, syncer.SkipInProgress, reason)

	release()

	_, reason, ok = l.Acquire(ctx, "tenant-a", "incidents")
	assert.False(t, ok)
	assert.Equal(t, syncer.SkipRateLimited, reason)
}

func TestRedisLocker_RateWindowExpires(t *testing.T) {
	l, mr := newRedisLocker(t, 15*time.Second)
	ctx := context.Background()

	release, _, ok := l.Acquire(ctx, "tenant-a", "weather")
	require.True(t, ok)
	release()

	mr.FastForward(15 * time.Second)

	release, reason, ok := l.Acquire(ctx, "tenant-a", "weather")
	assert.True(t, ok)
	assert.Equal(t, syncer.SkipNone, reason)
	release()
}

func TestRedisLocker_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := syncer.NewRedisLocker(client, 15*time.Second, slog.Default())

	mr.Close()

	release, reason, ok := l.Acquire(context.Background(), "tenant-a", "incidents")
	require.True(t, ok)
	assert.Equal(t, syncer.SkipNone, reason)
	release()
}

func TestRedisLocker_IndependentTenants(t *testing.T) {
	l, _ := newRedisLocker(t, 15*time.Second)
	ctx := context.Background()

	relA, _, ok := l.Acquire(ctx, "tenant-a", "incidents")
	require.True(t, ok)
	defer relA()

	relB, _, ok := l.Acquire(ctx, "tenant-b", "incidents")
	assert.True(t, ok)
	defer relB()
}
