package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marketloom/search-service/internal/cache"
	"github.com/marketloom/search-service/internal/engine"
)

var indexedDocs = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_index_documents_total",
		Help: "Index write operations partitioned by outcome",
	},
	[]string{"outcome"},
)

// ItemError reports the failure of one record in a bulk operation.
type ItemError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult summarizes a bulk index call. Item failures live in Errors;
// the call itself only fails when the whole batch transport fails.
type BulkResult struct {
	Indexed int         `json:"indexed"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// Invalidator is the slice of the response cache the manager needs: after
// any index mutation, cached search results are stale and must go.
type Invalidator interface {
	InvalidateTags(ctx context.Context, tags ...string)
}

// Manager owns the index lifecycle. All writes go through the Document
// Transformer so the backend only ever sees canonical documents.
type Manager struct {
	backend engine.IndexBackend
	cache   Invalidator
	logger  *slog.Logger
}

// NewManager creates an index manager. cache may be nil when no response
// cache is configured.
func NewManager(backend engine.IndexBackend, cache Invalidator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: backend, cache: cache, logger: logger}
}

// EnsureIndex creates the index with its schema if absent. Idempotent.
func (m *Manager) EnsureIndex(ctx context.Context) error {
	return m.backend.EnsureIndex(ctx)
}

// IndexOne transforms and upserts a single record.
func (m *Manager) IndexOne(ctx context.Context, rec *ProductRecord) error {
	doc, err := Transform(rec)
	if err != nil {
		indexedDocs.WithLabelValues("rejected").Inc()
		return err
	}

	results, err := m.backend.BulkWrite(ctx, []engine.BulkOp{
		{Action: engine.BulkIndex, ID: doc.ID, Doc: doc},
	})
	if err != nil {
		indexedDocs.WithLabelValues("failed").Inc()
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	for _, r := range results {
		if r.Err != "" {
			indexedDocs.WithLabelValues("failed").Inc()
			return fmt.Errorf("index %s: %s", r.ID, r.Err)
		}
	}

	indexedDocs.WithLabelValues("indexed").Inc()
	m.invalidate(ctx)
	m.logger.DebugContext(ctx, "indexed document", slog.String("id", doc.ID))
	return nil
}

// BulkIndex transforms and upserts a batch of records. A malformed record
// never aborts the batch: it is reported as an item error and the rest
// proceeds. The returned error covers whole-batch transport failure only.
func (m *Manager) BulkIndex(ctx context.Context, recs []*ProductRecord) (*BulkResult, error) {
	result := &BulkResult{}
	ops := make([]engine.BulkOp, 0, len(recs))

	for i, rec := range recs {
		doc, err := Transform(rec)
		if err != nil {
			id := fmt.Sprintf("item[%d]", i)
			if rec != nil && rec.ID != "" {
				id = rec.ID
			}
			result.Errors = append(result.Errors, ItemError{ID: id, Reason: err.Error()})
			indexedDocs.WithLabelValues("rejected").Inc()
			continue
		}
		ops = append(ops, engine.BulkOp{Action: engine.BulkIndex, ID: doc.ID, Doc: doc})
	}

	if len(ops) > 0 {
		items, err := m.backend.BulkWrite(ctx, ops)
		if err != nil {
			return nil, fmt.Errorf("bulk index: %w", err)
		}
		for _, item := range items {
			if item.Err != "" {
				result.Errors = append(result.Errors, ItemError{ID: item.ID, Reason: item.Err})
				indexedDocs.WithLabelValues("failed").Inc()
				continue
			}
			result.Indexed++
			indexedDocs.WithLabelValues("indexed").Inc()
		}
	}

	if result.Indexed > 0 {
		m.invalidate(ctx)
	}
	m.logger.InfoContext(ctx, "bulk index finished",
		slog.Int("indexed", result.Indexed),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// Remove deletes a document by ID. Absence of the document is success.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	m.invalidate(ctx)
	m.logger.DebugContext(ctx, "removed document", slog.String("id", id))
	return nil
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.cache == nil {
		return
	}
	m.cache.InvalidateTags(ctx, cache.TagProducts, cache.TagProductList)
}
