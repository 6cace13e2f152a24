package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-frontdesk-server/internal/metrics"
)

type stats struct {
	Waiting int `json:"waiting"`
}

func newRedisCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, RedisOptions{Failures: 2, OpenFor: time.Minute}, nil, metrics.NewCollector(prometheus.NewRegistry())), mr
}

func TestRedisRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	var got stats
	assert.False(t, GetJSON(ctx, c, "queue:stats:all", &got))

	SetJSON(ctx, c, "queue:stats:all", stats{Waiting: 3}, 10*time.Second)
	require.True(t, GetJSON(ctx, c, "queue:stats:all", &got))
	assert.Equal(t, 3, got.Waiting)

	mr.FastForward(11 * time.Second)
	assert.False(t, GetJSON(ctx, c, "queue:stats:all", &got), "expired")

	SetJSON(ctx, c, "a", stats{}, time.Minute)
	SetJSON(ctx, c, "b", stats{}, time.Minute)
	c.Delete(ctx, "a", "b")
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestRedisIncr(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	n, ok := c.Incr(ctx, "queue:stats:generation")
	require.True(t, ok)
	assert.EqualValues(t, 1, n)
	n, _ = c.Incr(ctx, "queue:stats:generation")
	assert.EqualValues(t, 2, n)

	raw, ok := c.Get(ctx, "queue:stats:generation")
	require.True(t, ok)
	assert.Equal(t, "2", string(raw))

	mr.Close()
	_, ok = c.Incr(ctx, "queue:stats:generation")
	assert.False(t, ok)
}

func TestRedisMissesDoNotTripBreaker(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, "absent")
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestRedisOutageOpensBreaker(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	assert.NotPanics(t, func() {
		c.Set(ctx, "k", []byte("v"), time.Second)
		c.Delete(ctx, "k")
	})
}

func TestNopCache(t *testing.T) {
	var c Cache = Nop{}
	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	_, ok = c.Incr(context.Background(), "k")
	assert.False(t, ok)
}
