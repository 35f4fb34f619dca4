package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultOpTimeout bounds every cache-store round trip so a slow Redis cannot
// inflate request latency. It is deliberately much shorter than any database
// timeout.
const defaultOpTimeout = 75 * time.Millisecond

// RedisStore implements Store on a Redis endpoint.
type RedisStore struct {
	client    redis.Cmdable
	opTimeout time.Duration
}

// NewRedisStore wraps a Redis client. opTimeout <= 0 selects the default.
func NewRedisStore(client redis.Cmdable, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &RedisStore{client: client, opTimeout: opTimeout}
}

// Get fetches the raw value. redis.Nil maps to a plain miss.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Set stores the value with expiry, overwriting unconditionally.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the key. DEL of an absent key is a no-op success.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteMatching scans for keys with the prefix and deletes them. The filter
// key space is small (one key per quantized listing filter) so a single scan
// pass is cheap.
func (r *RedisStore) DeleteMatching(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
