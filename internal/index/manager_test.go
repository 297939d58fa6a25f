package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketloom/search-service/internal/engine/memory"
)

type recordingInvalidator struct {
	calls [][]string
}

func (r *recordingInvalidator) InvalidateTags(_ context.Context, tags ...string) {
	r.calls = append(r.calls, tags)
}

func TestManager_IndexOneInvalidatesCache(t *testing.T) {
	backend := memory.New()
	inv := &recordingInvalidator{}
	m := NewManager(backend, inv, nil)

	require.NoError(t, m.IndexOne(t.Context(), fullRecord()))

	assert.Equal(t, 1, backend.Len())
	require.Len(t, inv.calls, 1)
	assert.Equal(t, []string{"products", "product-list"}, inv.calls[0])
}

func TestManager_IndexOneRejectsMalformedRecord(t *testing.T) {
	backend := memory.New()
	inv := &recordingInvalidator{}
	m := NewManager(backend, inv, nil)

	err := m.IndexOne(t.Context(), &ProductRecord{Name: "no id"})
	require.Error(t, err)
	assert.Equal(t, 0, backend.Len())
	assert.Empty(t, inv.calls, "nothing changed, nothing to invalidate")
}

func TestManager_BulkIndexPartialFailure(t *testing.T) {
	backend := memory.New()
	inv := &recordingInvalidator{}
	m := NewManager(backend, inv, nil)

	good1 := fullRecord()
	good2 := fullRecord()
	good2.ID = "p2"
	bad := &ProductRecord{ID: "p3"} // no name

	result, err := m.BulkIndex(t.Context(), []*ProductRecord{good1, bad, good2})
	require.NoError(t, err, "one malformed record must not fail the batch")

	assert.Equal(t, 2, result.Indexed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "p3", result.Errors[0].ID)
	assert.Equal(t, 2, backend.Len())
	assert.Len(t, inv.calls, 1, "tags invalidated once per batch")
}

func TestManager_BulkIndexAllMalformed(t *testing.T) {
	backend := memory.New()
	inv := &recordingInvalidator{}
	m := NewManager(backend, inv, nil)

	result, err := m.BulkIndex(t.Context(), []*ProductRecord{nil, {ID: "x"}})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Indexed)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, "item[0]", result.Errors[0].ID, "nil records get a positional ID")
	assert.Empty(t, inv.calls)
}

func TestManager_RemoveIsIdempotent(t *testing.T) {
	backend := memory.New()
	inv := &recordingInvalidator{}
	m := NewManager(backend, inv, nil)

	require.NoError(t, m.IndexOne(t.Context(), fullRecord()))
	require.NoError(t, m.Remove(t.Context(), "p1"))
	require.NoError(t, m.Remove(t.Context(), "p1"), "removing an absent document succeeds")

	assert.Equal(t, 0, backend.Len())
}

func TestManager_NilCacheIsFine(t *testing.T) {
	m := NewManager(memory.New(), nil, nil)
	require.NoError(t, m.IndexOne(t.Context(), fullRecord()))
}

func TestManager_EnsureIndexDelegates(t *testing.T) {
	m := NewManager(memory.New(), nil, nil)
	require.NoError(t, m.EnsureIndex(t.Context()))
}
