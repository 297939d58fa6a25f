package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the counter and starts the window on the first hit.
// Running it as one script keeps INCR and PEXPIRE atomic, so a crash between
// the two cannot leave a counter without an expiry.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisStore keeps window counters in Redis so budgets are shared across
// service replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements CounterStore.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit incr: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("ratelimit incr: unexpected script reply of length %d", len(res))
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("ratelimit incr: unexpected count type %T", res[0])
	}
	ttlMillis, ok := res[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("ratelimit incr: unexpected ttl type %T", res[1])
	}

	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}
