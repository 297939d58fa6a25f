package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() map[EndpointClass]Rule {
	return map[EndpointClass]Rule{
		ClassSearch:  {Limit: 3, Window: time.Minute},
		ClassSuggest: {Limit: 5, Window: time.Minute},
	}
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testRules(), nil)

	for i := 0; i < 3; i++ {
		d := limiter.Allow(t.Context(), ClassSearch, "user-1")
		assert.True(t, d.Allowed, "request %d within budget", i+1)
	}

	d := limiter.Allow(t.Context(), ClassSearch, "user-1")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_RemainingCountsDown(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testRules(), nil)

	d := limiter.Allow(t.Context(), ClassSearch, "user-1")
	assert.Equal(t, 2, d.Remaining)

	d = limiter.Allow(t.Context(), ClassSearch, "user-1")
	assert.Equal(t, 1, d.Remaining)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testRules(), nil)

	for i := 0; i < 3; i++ {
		limiter.Allow(t.Context(), ClassSearch, "user-1")
	}
	require.False(t, limiter.Allow(t.Context(), ClassSearch, "user-1").Allowed)

	d := limiter.Allow(t.Context(), ClassSearch, "user-2")
	assert.True(t, d.Allowed, "other callers keep their own budget")
}

func TestLimiter_ClassesAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testRules(), nil)

	for i := 0; i < 3; i++ {
		limiter.Allow(t.Context(), ClassSearch, "user-1")
	}
	require.False(t, limiter.Allow(t.Context(), ClassSearch, "user-1").Allowed)

	d := limiter.Allow(t.Context(), ClassSuggest, "user-1")
	assert.True(t, d.Allowed, "suggest budget is separate from search")
}

func TestLimiter_UnknownClassUnlimited(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testRules(), nil)

	for i := 0; i < 100; i++ {
		d := limiter.Allow(t.Context(), ClassAdmin, "user-1")
		assert.True(t, d.Allowed)
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, testRules(), nil)

	d := limiter.Allow(t.Context(), ClassSearch, "user-1")
	assert.True(t, d.Allowed, "store outage must not reject traffic")
}

func TestMemoryStore_WindowResets(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		_, _, err := store.Incr(t.Context(), "k", time.Minute)
		require.NoError(t, err)
	}

	count, _, err := store.Incr(t.Context(), "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	current = current.Add(61 * time.Second)

	count, ttl, err := store.Incr(t.Context(), "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "expired window starts fresh")
	assert.Equal(t, time.Minute, ttl)
}

func TestRedisStore_IncrAndExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)

	count, ttl, err := store.Incr(t.Context(), "ratelimit:search:user-1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Greater(t, ttl, time.Duration(0))

	count, _, err = store.Incr(t.Context(), "ratelimit:search:user-1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Window expiry resets the counter.
	mr.FastForward(61 * time.Second)

	count, _, err = store.Incr(t.Context(), "ratelimit:search:user-1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRedisStore_ErrorWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()

	store := NewRedisStore(client)
	_, _, err := store.Incr(t.Context(), "ratelimit:search:user-1", time.Minute)
	assert.Error(t, err)
}
