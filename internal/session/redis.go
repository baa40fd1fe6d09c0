package session

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisKV is client storage backed by go-redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV constructs a Redis-backed storage adapter.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get retrieves a value from Redis, mapping redis.Nil to ErrKeyNotFound.
func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return value, err
}

// Ping checks the Redis connection.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
