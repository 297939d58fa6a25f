package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketloom/search-service/internal/domain"
)

type cachedPayload struct {
	Total int    `json:"total"`
	Query string `json:"query"`
}

func TestResponseCache_RoundTrip(t *testing.T) {
	c := New(NewMemoryStore(), time.Minute, nil)

	c.Set(t.Context(), "k1", cachedPayload{Total: 7, Query: "laptop"}, TagProducts)

	var got cachedPayload
	require.True(t, c.Get(t.Context(), "k1", &got))
	assert.Equal(t, cachedPayload{Total: 7, Query: "laptop"}, got)
}

func TestResponseCache_MissOnUnknownKey(t *testing.T) {
	c := New(NewMemoryStore(), time.Minute, nil)

	var got cachedPayload
	assert.False(t, c.Get(t.Context(), "absent", &got))
}

func TestResponseCache_TagInvalidation(t *testing.T) {
	c := New(NewMemoryStore(), time.Minute, nil)

	c.Set(t.Context(), "k1", cachedPayload{Total: 1}, TagProducts, TagProductList)
	c.Set(t.Context(), "k2", cachedPayload{Total: 2}, TagProductList)
	c.Set(t.Context(), "k3", cachedPayload{Total: 3}, "untouched")

	c.InvalidateTags(t.Context(), TagProductList)

	var got cachedPayload
	assert.False(t, c.Get(t.Context(), "k1", &got))
	assert.False(t, c.Get(t.Context(), "k2", &got))
	assert.True(t, c.Get(t.Context(), "k3", &got))
}

func TestMemoryStore_ExpiryIsAMiss(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	require.NoError(t, store.Set(t.Context(), "k", []byte("v"), time.Minute, nil))

	current = current.Add(2 * time.Minute)

	_, ok, err := store.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_RoundTripAndTags(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)

	require.NoError(t, store.Set(t.Context(), "k1", []byte(`{"total":1}`), time.Minute, []string{TagProducts}))
	require.NoError(t, store.Set(t.Context(), "k2", []byte(`{"total":2}`), time.Minute, []string{"other"}))

	data, ok, err := store.Get(t.Context(), "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"total":1}`, string(data))

	require.NoError(t, store.InvalidateTags(t.Context(), TagProducts))

	_, ok, err = store.Get(t.Context(), "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(t.Context(), "k2")
	require.NoError(t, err)
	assert.True(t, ok, "entries under other tags survive")
}

func TestRedisStore_TTLEvictsEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	require.NoError(t, store.Set(t.Context(), "k", []byte("v"), 30*time.Second, nil))

	mr.FastForward(31 * time.Second)

	_, ok, err := store.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResponseCache_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := New(NewRedisStore(client), time.Minute, nil)
	mr.Close()

	var got cachedPayload
	assert.False(t, c.Get(t.Context(), "k", &got), "store error degrades to a miss")
	c.Set(t.Context(), "k", cachedPayload{Total: 1}) // must not panic or error
}

func strPtr(f float64) *float64 { return &f }

func TestSearchKey_Deterministic(t *testing.T) {
	reqA := &domain.SearchRequest{
		Query:      "laptop",
		BrandIDs:   []string{"b2", "b1"},
		MinPrice:   strPtr(500),
		Attributes: map[string][]string{"color": {"red", "blue"}, "size": {"m"}},
		SortBy:     domain.SortRelevance,
		Page:       1,
		Limit:      20,
	}
	reqB := &domain.SearchRequest{
		Query:      "laptop",
		BrandIDs:   []string{"b1", "b2"},
		MinPrice:   strPtr(500),
		Attributes: map[string][]string{"size": {"m"}, "color": {"blue", "red"}},
		SortBy:     domain.SortRelevance,
		Page:       1,
		Limit:      20,
	}

	id := domain.Identity{Key: "user-1", Role: "user"}
	assert.Equal(t, SearchKey(reqA, id), SearchKey(reqB, id),
		"ordering of brands and attributes must not change the key")
}

func TestSearchKey_VariesByFilterAndRole(t *testing.T) {
	base := &domain.SearchRequest{Query: "laptop", SortBy: domain.SortRelevance, Page: 1, Limit: 20}
	other := &domain.SearchRequest{Query: "laptop", SortBy: domain.SortRelevance, Page: 2, Limit: 20}

	user := domain.Identity{Role: "user", Locale: "en"}
	admin := domain.Identity{Role: "admin", Locale: "en"}
	german := domain.Identity{Role: "user", Locale: "de"}

	assert.NotEqual(t, SearchKey(base, user), SearchKey(other, user), "page is part of the key")
	assert.NotEqual(t, SearchKey(base, user), SearchKey(base, admin), "role is part of the key")
	assert.NotEqual(t, SearchKey(base, user), SearchKey(base, german), "locale is part of the key")
}

func TestSearchKey_LongKeysAreHashed(t *testing.T) {
	long := &domain.SearchRequest{
		Query:  string(make([]byte, 300)),
		SortBy: domain.SortRelevance,
		Page:   1,
		Limit:  20,
	}

	key := SearchKey(long, domain.Identity{Role: "user"})
	assert.LessOrEqual(t, len(key), len("search:resp:")+64)
}
