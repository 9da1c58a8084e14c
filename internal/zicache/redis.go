package zicache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend shares a cache across engine instances through go-redis,
// selected when ZI_CACHE_BACKEND=redis.
type redisBackend struct {
	client *redis.Client
}

func newRedisBackend(addr string) *redisBackend {
	return &redisBackend{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
