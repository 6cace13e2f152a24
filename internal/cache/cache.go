// Package cache is a best-effort read cache. A failing backend behaves like an
// empty cache: callers fall through to the database.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache stores opaque values with a time to live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	// Incr bumps the counter at key and returns its new value. ok is false
	// when the backend could not be reached.
	Incr(ctx context.Context, key string) (n int64, ok bool)
}

// Nop is a Cache that never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (Nop) Set(context.Context, string, []byte, time.Duration) {}
func (Nop) Delete(context.Context, ...string)                  {}
func (Nop) Incr(context.Context, string) (int64, bool)         { return 0, false }

// GetJSON decodes the cached value of key into dest. It reports a miss when
// the key is absent or the stored value does not decode.
func GetJSON(ctx context.Context, c Cache, key string, dest any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// SetJSON stores value encoded as JSON. Encoding failures are ignored.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw, ttl)
}
