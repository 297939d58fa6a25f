package engine

import (
	"context"

	"github.com/marketloom/search-service/internal/domain"
)

// Hit is one matching document with its relevance score and optional
// highlighted fragments.
type Hit struct {
	Document   domain.SearchDocument
	Score      float64
	Highlights map[string][]string
}

// AggBucket is one bucket of a computed aggregation. Bucket order is
// preserved from the backend response.
type AggBucket struct {
	Key   string
	Count int
	Label string
}

// QueryResult is the outcome of executing a compiled query.
type QueryResult struct {
	Hits         []Hit
	Total        int
	TookMs       int64
	Aggregations map[string][]AggBucket
}

// BulkAction discriminates bulk write operations.
type BulkAction string

const (
	BulkIndex  BulkAction = "index"
	BulkDelete BulkAction = "delete"
)

// BulkOp is one operation of a bulk write. Doc is required for index
// actions; ID alone suffices for deletes.
type BulkOp struct {
	Action BulkAction
	ID     string
	Doc    *domain.SearchDocument
}

// ItemResult is the per-item outcome of a bulk write. Err is "" on success.
type ItemResult struct {
	ID  string
	Err string
}

// IndexBackend abstracts the inverted-index store. Implementations may use
// Elasticsearch, in-memory storage, or other engines; the compiled query is
// the only contract between them and the search core.
type IndexBackend interface {
	// EnsureIndex creates the index with its schema if absent. Idempotent.
	EnsureIndex(ctx context.Context) error

	// Search executes a compiled query and returns hits plus aggregations.
	Search(ctx context.Context, query *domain.CompiledQuery) (*QueryResult, error)

	// BulkWrite applies a batch of operations, reporting each item's outcome
	// individually. It returns an error only when the whole batch transport
	// fails.
	BulkWrite(ctx context.Context, ops []BulkOp) ([]ItemResult, error)

	// Delete removes a document by ID. Absence of the document is success.
	Delete(ctx context.Context, id string) error

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}
