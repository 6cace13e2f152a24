package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/metrics"
)

// RedisOptions tunes the circuit breaker in front of Redis.
type RedisOptions struct {
	// Failures is the number of consecutive errors that opens the breaker.
	Failures uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

// Redis is a Cache backed by Redis. Every call goes through a circuit
// breaker; while it is open the cache reports misses without touching Redis.
type Redis struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *zap.Logger
	metrics *metrics.Collector
}

// NewRedis wraps client. log and m may be nil.
func NewRedis(client redis.UniversalClient, opts RedisOptions, log *zap.Logger, m *metrics.Collector) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Failures == 0 {
		opts.Failures = 5
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Redis{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		log:     log,
		metrics: m,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.breaker.Execute(func() ([]byte, error) {
		return r.client.Get(ctx, key).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		r.metrics.ObserveCacheLookup(false)
		return nil, false
	}
	r.metrics.ObserveCacheLookup(true)
	return raw, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	_, err := r.breaker.Execute(func() ([]byte, error) {
		return nil, r.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		r.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_, err := r.breaker.Execute(func() ([]byte, error) {
		return nil, r.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		r.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, bool) {
	var n int64
	_, err := r.breaker.Execute(func() ([]byte, error) {
		var err error
		n, err = r.client.Incr(ctx, key).Result()
		return nil, err
	})
	if err != nil {
		r.log.Warn("cache counter bump failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	return n, true
}

// State exposes the breaker state for health reporting.
func (r *Redis) State() gobreaker.State {
	return r.breaker.State()
}
