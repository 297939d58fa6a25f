package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/engine"
)

// Backend is the Elasticsearch implementation of engine.IndexBackend.
type Backend struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

// esSearchResponse is the structure used to decode search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Score     float64               `json:"_score"`
			Source    domain.SearchDocument `json:"_source"`
			Highlight map[string][]string   `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// esBulkItem is the per-action outcome inside a bulk response. Exactly one
// of the action keys is set per item.
type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esBulkResponse struct {
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

// esErrorResponse is used to decode error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch backend connected to the given URL. If
// indexName is empty, DefaultIndexName is used. The index itself is created
// lazily through EnsureIndex so construction does not require a live cluster.
func New(esURL, indexName string, logger *slog.Logger) (*Backend, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	return &Backend{
		client:    client,
		indexName: indexName,
		logger:    logger,
	}, nil
}

// Health implements engine.IndexBackend.
func (b *Backend) Health(ctx context.Context) error {
	res, err := b.client.Ping(b.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// EnsureIndex implements engine.IndexBackend. It checks whether the index
// exists and creates it with the full mapping if not.
func (b *Backend) EnsureIndex(ctx context.Context) error {
	res, err := b.client.Indices.Exists(
		[]string{b.indexName},
		b.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 200 {
		b.logger.Debug("index already exists", "index", b.indexName)
		return nil
	}

	res, err = b.client.Indices.Create(
		b.indexName,
		b.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		b.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("create index: %s", b.decodeError(res.Body, res.Status()))
	}

	b.logger.Info("index created", "index", b.indexName)
	return nil
}

// Search implements engine.IndexBackend. The compiled query is rendered to
// the ES query DSL, executed, and decoded back into engine types.
func (b *Backend) Search(ctx context.Context, query *domain.CompiledQuery) (*engine.QueryResult, error) {
	body := buildSearchBody(query)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := b.client.Search(
		b.client.Search.WithIndex(b.indexName),
		b.client.Search.WithBody(bytes.NewReader(data)),
		b.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search: %s", b.decodeError(res.Body, res.Status()))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]engine.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, engine.Hit{
			Document:   h.Source,
			Score:      h.Score,
			Highlights: h.Highlight,
		})
	}

	aggs, err := parseAggregations(esResp.Aggregations, query.Aggregations)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}

	return &engine.QueryResult{
		Hits:         hits,
		Total:        esResp.Hits.Total.Value,
		TookMs:       int64(esResp.Took),
		Aggregations: aggs,
	}, nil
}

// BulkWrite implements engine.IndexBackend using the bulk NDJSON API.
// Per-item failures are reported in the result slice; the returned error
// covers transport or whole-batch failures only.
func (b *Backend) BulkWrite(ctx context.Context, ops []engine.BulkOp) ([]engine.ItemResult, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i := range ops {
		op := ops[i]
		meta := map[string]interface{}{"_index": b.indexName, "_id": op.ID}

		switch op.Action {
		case engine.BulkDelete:
			if err := enc.Encode(map[string]interface{}{"delete": meta}); err != nil {
				return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
			}
		default:
			if err := enc.Encode(map[string]interface{}{"index": meta}); err != nil {
				return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
			}
			if err := enc.Encode(op.Doc); err != nil {
				return nil, fmt.Errorf("elasticsearch bulk: encode document: %w", err)
			}
		}
	}

	res, err := b.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		b.client.Bulk.WithIndex(b.indexName),
		b.client.Bulk.WithRefresh("true"),
		b.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch bulk: %s", b.decodeError(res.Body, res.Status()))
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	results := make([]engine.ItemResult, 0, len(bulkResp.Items))
	for _, item := range bulkResp.Items {
		// Each item holds a single entry keyed by its action name.
		for _, detail := range item {
			r := engine.ItemResult{ID: detail.ID}
			// A 404 on delete means the document was already gone.
			if detail.Error.Type != "" && detail.Status != 404 {
				r.Err = fmt.Sprintf("%s: %s", detail.Error.Type, detail.Error.Reason)
			}
			results = append(results, r)
		}
	}

	if bulkResp.Errors {
		b.logger.Warn("bulk write completed with item errors", "items", len(results))
	}
	return results, nil
}

// Delete implements engine.IndexBackend. A 404 is success.
func (b *Backend) Delete(ctx context.Context, id string) error {
	res, err := b.client.Delete(
		b.indexName,
		id,
		b.client.Delete.WithContext(ctx),
		b.client.Delete.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("elasticsearch delete: %s", b.decodeError(res.Body, res.Status()))
	}

	b.logger.Debug("deleted document", "id", id)
	return nil
}

// decodeError extracts a readable message from an ES error body, falling
// back to the HTTP status line.
func (b *Backend) decodeError(body io.Reader, status string) string {
	var errResp esErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Sprintf("%s: %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return "unexpected status " + status
}
