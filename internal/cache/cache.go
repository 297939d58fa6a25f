// Package cache provides short-lived response caching with tag-based
// invalidation. Entries are tagged at write time; an index update later
// invalidates every entry carrying the affected tag, so stale results
// disappear without waiting for the TTL.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Common tags attached to cached search responses.
const (
	TagProducts    = "products"
	TagProductList = "product-list"
)

// Store is the byte-level cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_requests_total",
			Help: "Cache lookups partitioned by outcome",
		},
		[]string{"outcome"},
	)
)

// ResponseCache caches JSON-serializable responses. Every failure of the
// underlying store degrades to a miss or a no-op: a cache outage slows
// requests down but never fails them.
type ResponseCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a response cache with the given default TTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{store: store, ttl: ttl, logger: logger}
}

// Get loads the cached value for key into dst. Returns false on miss,
// decode failure, or store error.
func (c *ResponseCache) Get(ctx context.Context, key string, dst any) bool {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		cacheHits.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "cache get failed", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		cacheHits.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		cacheHits.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "cache entry corrupt, treating as miss", slog.String("error", err.Error()))
		return false
	}
	cacheHits.WithLabelValues("hit").Inc()
	return true
}

// Set stores src under key with the cache's TTL and the given tags.
func (c *ResponseCache) Set(ctx context.Context, key string, src any, tags ...string) {
	data, err := json.Marshal(src)
	if err != nil {
		c.logger.WarnContext(ctx, "cache marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl, tags); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", slog.String("error", err.Error()))
	}
}

// InvalidateTags drops every entry carrying any of the given tags.
func (c *ResponseCache) InvalidateTags(ctx context.Context, tags ...string) {
	if err := c.store.InvalidateTags(ctx, tags...); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("tags", tags),
			slog.String("error", err.Error()),
		)
	}
}
