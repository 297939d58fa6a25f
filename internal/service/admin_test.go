package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/marketloom/search-service/pkg/errors"

	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/index"
)

func adminCaller() domain.Identity { return domain.Identity{Key: "admin-1", Role: "admin"} }

func TestIndexProduct_WritesThroughManager(t *testing.T) {
	f := newFixture(t)
	before := f.backend.Len()

	err := f.svc.IndexProduct(t.Context(), &index.ProductRecord{
		ID:     "p-new",
		Name:   "Ultrawide Monitor",
		Price:  &index.PriceRecord{Amount: 599, Currency: "USD"},
		Stock:  &index.StockRecord{Quantity: 4},
		Status: "active",
	}, adminCaller())

	require.NoError(t, err)
	assert.Equal(t, before+1, f.backend.Len())
}

func TestBulkIndexProducts_ReportsItemErrors(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.BulkIndexProducts(t.Context(), []*index.ProductRecord{
		{ID: "b1", Name: "Desk Mat", Status: "active"},
		{ID: "b2"},
	}, adminCaller())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "b2", result.Errors[0].ID)
}

func TestRemoveProduct_AbsentIDSucceeds(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.svc.RemoveProduct(t.Context(), "ghost", adminCaller()))
}

func TestAdminBudget_IsSeparateFromSearch(t *testing.T) {
	f := newFixture(t)
	id := adminCaller()

	limit := f.rules["admin"].Limit
	for i := 0; i < limit; i++ {
		require.NoError(t, f.svc.RemoveProduct(t.Context(), "ghost", id))
	}

	err := f.svc.RemoveProduct(t.Context(), "ghost", id)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	// The same caller still has their full search allowance.
	_, err = f.svc.Search(t.Context(), &domain.SearchRequest{Query: "laptop"}, id)
	assert.NoError(t, err)
}
