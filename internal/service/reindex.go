package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	apperrors "github.com/marketloom/search-service/pkg/errors"
	"github.com/marketloom/search-service/pkg/httpclient"

	"github.com/marketloom/search-service/internal/index"
)

// reindexPageSize is how many records one catalog fetch requests.
const reindexPageSize = 200

// CatalogSource pages through the catalog service's product records.
type CatalogSource interface {
	// FetchProducts returns one page of records plus the total page count.
	FetchProducts(ctx context.Context, page, limit int) ([]*index.ProductRecord, int, error)
}

// CatalogClient fetches product records from the catalog service over HTTP,
// behind the circuit breaker.
type CatalogClient struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
}

// NewCatalogClient creates a catalog client for the given base URL.
func NewCatalogClient(client *httpclient.CircuitBreakerClient, baseURL string) *CatalogClient {
	return &CatalogClient{client: client, baseURL: baseURL}
}

// FetchProducts implements CatalogSource.
func (c *CatalogClient) FetchProducts(ctx context.Context, page, limit int) ([]*index.ProductRecord, int, error) {
	url := fmt.Sprintf("%s/internal/products?page=%d&limit=%d", c.baseURL, page, limit)

	resp, err := c.client.Get(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch catalog page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, 0, httpclient.ParseResponseError(resp, "catalog")
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Products   []*index.ProductRecord `json:"products"`
			TotalPages int                    `json:"total_pages"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("decode catalog page %d: %w", page, err)
	}
	return payload.Data.Products, payload.Data.TotalPages, nil
}

// Reindex rebuilds the whole index from the catalog service. Only one
// reindex may run at a time; concurrent invocations are rejected. Malformed
// records are skipped and reported, they never abort the run. Cached search
// results are invalidated once, after the bulk write.
func (s *Service) Reindex(ctx context.Context) (*index.BulkResult, error) {
	if s.catalog == nil {
		return nil, apperrors.Unavailable("catalog source not configured", nil)
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, apperrors.Conflict("reindex already in progress")
	}
	defer s.reindexing.Store(false)

	var records []*index.ProductRecord
	for page := 1; ; page++ {
		batch, totalPages, err := s.catalog.FetchProducts(ctx, page, reindexPageSize)
		if err != nil {
			return nil, apperrors.Unavailable("catalog fetch failed", err)
		}
		records = append(records, batch...)
		if page >= totalPages || len(batch) == 0 {
			break
		}
	}

	result, err := s.index.BulkIndex(ctx, records)
	if err != nil {
		return nil, apperrors.Unavailable("reindex bulk write failed", err)
	}

	s.logger.InfoContext(ctx, "reindex finished",
		slog.Int("fetched", len(records)),
		slog.Int("indexed", result.Indexed),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}
