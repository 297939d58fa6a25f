// Package index owns the search index lifecycle: transforming canonical
// catalog records into search documents and writing them through the
// configured backend.
package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/marketloom/search-service/internal/domain"
)

// PriceRecord is the price block of an upstream catalog record.
type PriceRecord struct {
	Amount   float64 `json:"amount"`
	Original float64 `json:"original"`
	Currency string  `json:"currency"`
}

// CategoryRecord is one node of the upstream category path, root first.
type CategoryRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BrandRecord identifies the brand of an upstream record.
type BrandRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StockRecord is the availability block of an upstream record.
type StockRecord struct {
	Quantity int `json:"quantity"`
}

// RatingRecord is the review aggregate of an upstream record.
type RatingRecord struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// ProductRecord is the canonical product shape received from the catalog
// service, over events or the bulk API. Nested blocks are pointers because
// upstream records may omit them; the transformer fills the gaps.
type ProductRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       *PriceRecord      `json:"price,omitempty"`
	Categories  []CategoryRecord  `json:"categories,omitempty"`
	Brand       *BrandRecord      `json:"brand,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Stock       *StockRecord      `json:"stock,omitempty"`
	Rating      *RatingRecord     `json:"rating,omitempty"`
	Status      string            `json:"status"`
	Geo         *domain.GeoPoint  `json:"geo,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// defaultCurrency is applied when an upstream price omits its currency.
const defaultCurrency = "USD"

// Transform maps a catalog record into a search document. Missing nested
// blocks are defaulted, never omitted, so the index schema stays stable
// across partial upstream records. ID and Name are the only hard
// requirements.
func Transform(rec *ProductRecord) (*domain.SearchDocument, error) {
	if rec == nil {
		return nil, fmt.Errorf("transform: nil record")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, fmt.Errorf("transform: record has no id")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return nil, fmt.Errorf("transform %s: record has no name", rec.ID)
	}

	doc := &domain.SearchDocument{
		ID:          rec.ID,
		Type:        domain.TypeProduct,
		Name:        rec.Name,
		Description: rec.Description,
		Tags:        append([]string(nil), rec.Tags...),
		Attributes:  map[string]string{},
		Geo:         rec.Geo,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	for k, v := range rec.Attributes {
		doc.Attributes[k] = v
	}

	doc.Price = domain.Price{Currency: defaultCurrency}
	if rec.Price != nil {
		doc.Price = domain.Price{
			Current:  rec.Price.Amount,
			Original: rec.Price.Original,
			Currency: rec.Price.Currency,
		}
		if doc.Price.Currency == "" {
			doc.Price.Currency = defaultCurrency
		}
		if doc.Price.Original == 0 {
			doc.Price.Original = doc.Price.Current
		}
	}

	doc.CategoryPath = make([]domain.CategoryRef, 0, len(rec.Categories))
	for _, c := range rec.Categories {
		doc.CategoryPath = append(doc.CategoryPath, domain.CategoryRef{ID: c.ID, Name: c.Name})
	}

	if rec.Brand != nil {
		doc.Brand = domain.BrandRef{ID: rec.Brand.ID, Name: rec.Brand.Name}
	}

	if rec.Stock != nil {
		doc.Availability = domain.Availability{
			InStock:  rec.Stock.Quantity > 0,
			Quantity: rec.Stock.Quantity,
		}
	}

	if rec.Rating != nil {
		doc.Rating = domain.Rating{Average: rec.Rating.Average, Count: rec.Rating.Count}
	}
	// Floor, not round: a 4.6-rated product belongs in the "4 stars & up"
	// bucket, never in a 5-star bucket it has not earned.
	doc.RatingFloor = int(doc.Rating.Average)

	doc.Status = domain.StatusDraft
	if domain.IsValidStatus(rec.Status) {
		doc.Status = domain.DocumentStatus(rec.Status)
	}

	doc.Suggest = buildSuggest(doc)

	return doc, nil
}

// buildSuggest assembles the autocomplete inputs: product name, brand name,
// category names and tags, deduplicated, with the review count as weight.
func buildSuggest(doc *domain.SearchDocument) domain.SuggestPayload {
	seen := make(map[string]struct{})
	inputs := make([]string, 0, 2+len(doc.CategoryPath)+len(doc.Tags))

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		inputs = append(inputs, s)
	}

	add(doc.Name)
	add(doc.Brand.Name)
	for _, c := range doc.CategoryPath {
		add(c.Name)
	}
	for _, t := range doc.Tags {
		add(t)
	}

	return domain.SuggestPayload{
		Input:  inputs,
		Weight: doc.Rating.Count,
	}
}
