// Package cache holds short-lived shared state: sign-in attempt counters
// and CSRF tokens. Redis is the only backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned by Get when the key does not exist.
	ErrMiss = errors.New("cache: miss")

	// ErrUnavailable wraps any transport or server failure.
	ErrUnavailable = errors.New("cache: unavailable")
)

// Cache is the capability the throttle and CSRF guard depend on.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl keeps the key until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments key and (re)arms its expiry to ttl in the
	// same round trip. It returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL returns the remaining lifetime of key, or 0 when the key is
	// missing or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Del(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
}

// Redis implements Cache on a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client. The caller keeps ownership of it
// unless Close is called.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Open parses a redis:// URL and connects.
func Open(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	r := NewRedis(redis.NewClient(opts))
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", unavailable(err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return incr.Val(), nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	// -1 (no expiry) and -2 (missing) both come back negative.
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
