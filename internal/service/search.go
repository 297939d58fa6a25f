// Package service orchestrates search requests across the rate limiter,
// response cache, query compiler, index backend and analytics recorder.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/marketloom/search-service/pkg/errors"

	"github.com/marketloom/search-service/internal/analytics"
	"github.com/marketloom/search-service/internal/cache"
	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/engine"
	"github.com/marketloom/search-service/internal/index"
	"github.com/marketloom/search-service/internal/query"
	"github.com/marketloom/search-service/internal/ratelimit"
)

var backendRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "search_backend_retries_total",
	Help: "Total number of retried backend queries",
})

// SuggestProvider is the slice of the suggestion engine the service needs.
type SuggestProvider interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]domain.SuggestionEntry, error)
}

// EventRecorder receives analytics events. Implementations must not block.
type EventRecorder interface {
	RecordQuery(entry analytics.QueryLogEntry)
	RecordClick(event analytics.ClickEvent)
}

// Config holds the orchestrator's tunables.
type Config struct {
	Limits query.Limits

	// MaxConcurrentSearches bounds in-flight backend queries. Requests
	// beyond the bound are rejected, not queued.
	MaxConcurrentSearches int

	// RetryBaseDelay is the initial backoff before the single retry of a
	// failed backend query.
	RetryBaseDelay time.Duration
}

// Deps are the collaborators of the search service. Cache, Recorder and
// Catalog are optional; a nil value disables that concern.
type Deps struct {
	Backend   engine.IndexBackend
	Limiter   *ratelimit.Limiter
	Cache     *cache.ResponseCache
	Suggester SuggestProvider
	Recorder  EventRecorder
	Index     *index.Manager
	Catalog   CatalogSource
	Logger    *slog.Logger
}

// Service is the search orchestrator.
type Service struct {
	backend   engine.IndexBackend
	limiter   *ratelimit.Limiter
	cache     *cache.ResponseCache
	suggester SuggestProvider
	recorder  EventRecorder
	index     *index.Manager
	catalog   CatalogSource
	logger    *slog.Logger

	limits     query.Limits
	gate       chan struct{}
	retryBase  time.Duration
	reindexing atomic.Bool
}

// New creates the orchestrator.
func New(cfg Config, deps Deps) *Service {
	if cfg.MaxConcurrentSearches <= 0 {
		cfg.MaxConcurrentSearches = 32
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.Limits.DefaultLimit == 0 {
		cfg.Limits = query.DefaultLimits()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		backend:   deps.Backend,
		limiter:   deps.Limiter,
		cache:     deps.Cache,
		suggester: deps.Suggester,
		recorder:  deps.Recorder,
		index:     deps.Index,
		catalog:   deps.Catalog,
		logger:    deps.Logger,
		limits:    cfg.Limits,
		gate:      make(chan struct{}, cfg.MaxConcurrentSearches),
		retryBase: cfg.RetryBaseDelay,
	}
}

// Search runs one faceted search for the given caller. The pipeline is
// rate limit, cache lookup, compile, bounded execute with one retry, facet
// parse, cache fill, analytics.
func (s *Service) Search(ctx context.Context, req *domain.SearchRequest, id domain.Identity) (*domain.SearchResponse, error) {
	if d := s.limiter.Allow(ctx, ratelimit.ClassSearch, id.Key); !d.Allowed {
		return nil, apperrors.RateLimited(d.RetryAfter)
	}

	start := time.Now()
	key := cache.SearchKey(req, id)

	if s.cache != nil {
		var cached domain.SearchResponse
		if s.cache.Get(ctx, key, &cached) {
			s.recordQuery(req, id, cached.Total, time.Since(start))
			return &cached, nil
		}
	}

	compiled, err := query.Compile(req, id, s.limits)
	if err != nil {
		// Validation failures are user-caused: no retry, no analytics.
		return nil, err
	}
	compiled = query.WithAggregations(compiled, req.Facets)

	select {
	case s.gate <- struct{}{}:
	default:
		return nil, apperrors.Unavailable("search capacity exhausted", nil)
	}
	result, err := s.execute(ctx, compiled)
	<-s.gate
	if err != nil {
		return nil, apperrors.Unavailable("search backend unavailable", err)
	}

	products := make([]domain.SearchDocument, 0, len(result.Hits))
	for _, hit := range result.Hits {
		products = append(products, hit.Document)
	}

	resp := &domain.SearchResponse{
		Products:   products,
		Total:      result.Total,
		Page:       compiled.From/compiled.Size + 1,
		Limit:      compiled.Size,
		TotalPages: totalPages(result.Total, compiled.Size),
		Facets:     query.ParseFacets(result.Aggregations, req.Facets),
		TookMs:     time.Since(start).Milliseconds(),
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, resp, cache.TagProducts, cache.TagProductList)
	}
	s.recordQuery(req, id, resp.Total, time.Since(start))

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", req.Query),
		slog.Int("total", resp.Total),
		slog.Int64("took_ms", resp.TookMs),
	)
	return resp, nil
}

// execute runs the compiled query with a single retry on failure.
func (s *Service) execute(ctx context.Context, compiled *domain.CompiledQuery) (*engine.QueryResult, error) {
	attempt := 0
	operation := func() (*engine.QueryResult, error) {
		attempt++
		if attempt > 1 {
			backendRetries.Inc()
		}
		return s.backend.Search(ctx, compiled)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.retryBase

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(2),
	)
}

// Suggest serves autocomplete under the suggest budget.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int, id domain.Identity) ([]domain.SuggestionEntry, error) {
	if d := s.limiter.Allow(ctx, ratelimit.ClassSuggest, id.Key); !d.Allowed {
		return nil, apperrors.RateLimited(d.RetryAfter)
	}
	return s.suggester.Suggest(ctx, prefix, limit)
}

// TrackClick records a result click under the track budget.
func (s *Service) TrackClick(ctx context.Context, event analytics.ClickEvent, id domain.Identity) error {
	if d := s.limiter.Allow(ctx, ratelimit.ClassTrack, id.Key); !d.Allowed {
		return apperrors.RateLimited(d.RetryAfter)
	}
	if event.ClickedID == "" {
		return apperrors.InvalidInput("clicked_id is required")
	}
	if event.Position < 1 {
		return apperrors.InvalidInput("position must be >= 1")
	}
	if event.SessionID == "" {
		event.SessionID = id.SessionID
	}
	if s.recorder != nil {
		s.recorder.RecordClick(event)
	}
	return nil
}

func (s *Service) recordQuery(req *domain.SearchRequest, id domain.Identity, total int, took time.Duration) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordQuery(analytics.QueryLogEntry{
		Query:          req.Query,
		Filters:        summarizeFilters(req),
		ResultCount:    total,
		IdentityKey:    id.Key,
		SessionID:      id.SessionID,
		ResponseTimeMs: took.Milliseconds(),
	})
}

// summarizeFilters flattens the structured filters of a request for the
// query log.
func summarizeFilters(req *domain.SearchRequest) map[string]string {
	filters := make(map[string]string)
	if req.CategoryID != "" {
		filters["category"] = req.CategoryID
	}
	if len(req.BrandIDs) > 0 {
		filters["brands"] = strings.Join(req.BrandIDs, ",")
	}
	if req.MinPrice != nil {
		filters["min_price"] = strconv.FormatFloat(*req.MinPrice, 'f', -1, 64)
	}
	if req.MaxPrice != nil {
		filters["max_price"] = strconv.FormatFloat(*req.MaxPrice, 'f', -1, 64)
	}
	if req.MinRating != nil {
		filters["min_rating"] = strconv.FormatFloat(*req.MinRating, 'f', -1, 64)
	}
	if req.InStock != nil {
		filters["in_stock"] = strconv.FormatBool(*req.InStock)
	}
	for k, vs := range req.Attributes {
		filters["attr."+k] = strings.Join(vs, ",")
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
