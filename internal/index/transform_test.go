package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketloom/search-service/internal/domain"
)

func fullRecord() *ProductRecord {
	return &ProductRecord{
		ID:          "p1",
		Name:        "Gaming Laptop Pro",
		Description: "Fast laptop",
		Price:       &PriceRecord{Amount: 1499, Original: 1699, Currency: "EUR"},
		Categories: []CategoryRecord{
			{ID: "c-electronics", Name: "Electronics"},
			{ID: "c-laptops", Name: "Laptops"},
		},
		Brand:      &BrandRecord{ID: "b-nova", Name: "Nova"},
		Tags:       []string{"gaming", "laptop"},
		Attributes: map[string]string{"color": "black"},
		Stock:      &StockRecord{Quantity: 12},
		Rating:     &RatingRecord{Average: 4.7, Count: 210},
		Status:     "active",
		CreatedAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestTransform_FullRecord(t *testing.T) {
	doc, err := Transform(fullRecord())
	require.NoError(t, err)

	assert.Equal(t, "p1", doc.ID)
	assert.Equal(t, domain.TypeProduct, doc.Type)
	assert.Equal(t, domain.Price{Current: 1499, Original: 1699, Currency: "EUR"}, doc.Price)
	require.Len(t, doc.CategoryPath, 2)
	assert.Equal(t, "c-electronics", doc.CategoryPath[0].ID, "path order is root first")
	assert.Equal(t, domain.BrandRef{ID: "b-nova", Name: "Nova"}, doc.Brand)
	assert.True(t, doc.Availability.InStock)
	assert.Equal(t, 12, doc.Availability.Quantity)
	assert.Equal(t, 4.7, doc.Rating.Average)
	assert.Equal(t, 4, doc.RatingFloor)
	assert.Equal(t, domain.StatusActive, doc.Status)
}

func TestTransform_DefaultsMissingBlocks(t *testing.T) {
	doc, err := Transform(&ProductRecord{ID: "p2", Name: "Bare Product"})
	require.NoError(t, err)

	assert.Equal(t, domain.Price{Currency: "USD"}, doc.Price, "missing price defaults, never omitted")
	assert.NotNil(t, doc.CategoryPath)
	assert.Empty(t, doc.CategoryPath)
	assert.NotNil(t, doc.Tags)
	assert.NotNil(t, doc.Attributes)
	assert.False(t, doc.Availability.InStock)
	assert.Equal(t, domain.Rating{}, doc.Rating)
	assert.Equal(t, 0, doc.RatingFloor)
	assert.Equal(t, domain.StatusDraft, doc.Status, "unknown status falls back to draft")
}

func TestTransform_ZeroQuantityIsOutOfStock(t *testing.T) {
	rec := fullRecord()
	rec.Stock = &StockRecord{Quantity: 0}

	doc, err := Transform(rec)
	require.NoError(t, err)
	assert.False(t, doc.Availability.InStock)
}

func TestTransform_OriginalPriceDefaultsToCurrent(t *testing.T) {
	rec := fullRecord()
	rec.Price = &PriceRecord{Amount: 100}

	doc, err := Transform(rec)
	require.NoError(t, err)
	assert.Equal(t, 100.0, doc.Price.Original)
	assert.Equal(t, "USD", doc.Price.Currency)
}

func TestTransform_SuggestInputs(t *testing.T) {
	rec := fullRecord()
	rec.Tags = []string{"gaming", "Nova"} // brand name repeated as a tag

	doc, err := Transform(rec)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"Gaming Laptop Pro", "Nova", "Electronics", "Laptops", "gaming"},
		doc.Suggest.Input,
		"inputs are name, brand, categories, tags with case-insensitive dedup")
	assert.Equal(t, 210, doc.Suggest.Weight)
}

func TestTransform_RejectsIncompleteRecords(t *testing.T) {
	_, err := Transform(nil)
	assert.Error(t, err)

	_, err = Transform(&ProductRecord{Name: "No ID"})
	assert.Error(t, err)

	_, err = Transform(&ProductRecord{ID: "p9", Name: "   "})
	assert.Error(t, err)
}
