package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Redis is a Store implementation backed by a shared Redis instance,
// suitable for multi-process deployments where session state must survive
// a single process restarting.
//
// Grounded on atproto/identity/redisdir/redis_directory.go's use of
// redis/go-redis/v9 + go-redis/cache/v9, with one deliberate omission: this
// store is the system of record for session state, not a read-through
// cache in front of another source of truth, so redisdir's in-process
// TinyLFU local-cache layer is not carried forward (see DESIGN.md) — the
// cache.Cache here is configured with no LocalCache, making it a thin
// marshaling convenience over the Redis client rather than a second tier
// that could serve stale data past a lock release.
type Redis struct {
	client *redis.Client
	cache  *cache.Cache
}

// NewRedis constructs a Redis store from a redis:// connection URL.
func NewRedis(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parsing redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	c := cache.New(&cache.Options{Redis: client})
	return &Redis{client: client, cache: c}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.cache.Get(ctx, key, &value); err != nil {
		if err == cache.ErrCacheMiss {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: redis get: %w", err)
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	// cache.Item treats a zero TTL as "use the library default" (one hour);
	// a negative TTL stores the key without expiry.
	if ttl == 0 {
		ttl = -1
	}
	item := &cache.Item{Ctx: ctx, Key: key, Value: value, TTL: ttl}
	if err := r.cache.Set(item); err != nil {
		return fmt.Errorf("storage: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.cache.Delete(ctx, key); err != nil && err != cache.ErrCacheMiss {
		return fmt.Errorf("storage: redis delete: %w", err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("storage: redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: redis mget: %w", err)
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *Redis) MultiSet(ctx context.Context, values map[string]string, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	for k, v := range values {
		pipe.Set(ctx, k, v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: redis multi-set: %w", err)
	}
	return nil
}

func (r *Redis) AcquireLock(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, lockKey(key), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("storage: redis acquire lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

func (r *Redis) ReleaseLock(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("storage: redis release lock: %w", err)
	}
	return nil
}

func lockKey(key string) string {
	return key
}

var _ Store = (*Redis)(nil)
