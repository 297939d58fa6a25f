package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func tagSetKey(tag string) string {
	return "search:tag:" + tag
}

// RedisStore backs the cache with Redis. Entries are plain string values;
// tag membership lives in per-tag sets whose TTL outlives the entries they
// index, so invalidation always sees the full member list.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return data, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, tag := range tags {
		setKey := tagSetKey(tag)
		pipe.SAdd(ctx, setKey, key)
		pipe.Expire(ctx, setKey, 2*ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateTags implements Store. Tag sets may reference already-expired
// entries; deleting those is a harmless no-op.
func (s *RedisStore) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		setKey := tagSetKey(tag)
		members, err := s.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return fmt.Errorf("cache invalidate %s: %w", tag, err)
		}

		pipe := s.client.TxPipeline()
		if len(members) > 0 {
			pipe.Del(ctx, members...)
		}
		pipe.Del(ctx, setKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", tag, err)
		}
	}
	return nil
}
