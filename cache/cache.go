// Package cache provides the object cache used in front of the user store.
// Values are stored per key with a TTL; the Redis backend serializes them as
// JSON so they can be shared between instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound  = errors.New("cache: entry not found")
	ErrClosed    = errors.New("cache: closed")
	ErrMarshal   = errors.New("cache: marshal value")
	ErrUnmarshal = errors.New("cache: unmarshal value")
)

// Cache is a key value store with per entry expiration.
//
// TTL passed to Set: positive expires after the duration, zero uses the
// backend default, negative never expires.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Close() error
}

// Codec turns values into bytes for backends that store raw payloads.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec is the default Codec.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshal, err)
	}
	return data, nil
}

func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrUnmarshal, err)
	}
	return v, nil
}

// Loader computes a value on a cache miss and returns the TTL to store it with.
type Loader[V any] func(ctx context.Context) (V, time.Duration, error)

// LoadTimeout bounds a shared load once it is detached from its callers.
var LoadTimeout = 30 * time.Second

var loads singleflight.Group

// GetOrLoad returns the cached value for key or calls load on a miss.
// Concurrent misses for the same key on the same cache share one load call.
// The shared load keeps the first caller's context values but not its
// cancellation, so a caller that goes away does not fail the others; each
// caller still returns early when its own ctx is done. Load errors are
// returned as is and nothing is stored. A failure to store the loaded value
// is ignored.
func GetOrLoad[V any](ctx context.Context, c Cache[V], key string, load Loader[V]) (V, error) {
	var zero V
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	ch := loads.DoChan(flightKey(c, key), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()

		v, ttl, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		_ = c.Set(loadCtx, key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// flightKey scopes in-flight loads to one cache instance.
func flightKey[V any](c Cache[V], key string) string {
	return fmt.Sprintf("%T@%p:%s", c, c, key)
}
