package domain

import (
	"time"
)

// DocumentStatus is the lifecycle status of a searchable document.
// Only active documents are visible to non-admin searches.
type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusActive   DocumentStatus = "active"
	StatusArchived DocumentStatus = "archived"
)

// IsValidStatus checks whether the given string is a known document status.
func IsValidStatus(s string) bool {
	switch DocumentStatus(s) {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// DocumentType distinguishes the entity kind behind a search document.
type DocumentType string

const (
	TypeProduct  DocumentType = "product"
	TypeCategory DocumentType = "category"
)

// Price is the denormalized price block of a search document.
type Price struct {
	Current  float64 `json:"current"`
	Original float64 `json:"original"`
	Currency string  `json:"currency"`
}

// CategoryRef is one entry in a document's category path, ordered from the
// root ancestor down to the direct category.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BrandRef identifies the brand of a document.
type BrandRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Availability holds stock information for a document.
type Availability struct {
	InStock  bool `json:"in_stock"`
	Quantity int  `json:"quantity"`
}

// Rating holds aggregate review data for a document.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// SuggestPayload feeds the autocomplete completion field. Input carries the
// name, tags, brand and category names of the document.
type SuggestPayload struct {
	Input  []string `json:"input"`
	Weight int      `json:"weight"`
}

// GeoPoint is an optional location attached to a document.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SearchDocument is the denormalized, backend-stored representation of one
// searchable entity. The Document Transformer guarantees all nested blocks
// are present (defaulted, never omitted) so the index schema stays stable
// across partial upstream records.
type SearchDocument struct {
	ID           string            `json:"id"`
	Type         DocumentType      `json:"type"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Price        Price             `json:"price"`
	CategoryPath []CategoryRef     `json:"category_path"`
	Brand        BrandRef          `json:"brand"`
	Tags         []string          `json:"tags"`
	Attributes   map[string]string `json:"attributes"`
	Availability Availability      `json:"availability"`
	Rating       Rating            `json:"rating"`
	// RatingFloor is Rating.Average truncated to an integer so star-based
	// facet buckets aggregate on a cheap keyword-like field.
	RatingFloor int            `json:"rating_floor"`
	Status      DocumentStatus `json:"status"`
	Suggest     SuggestPayload `json:"suggest"`
	Geo         *GeoPoint      `json:"geo,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CategoryID returns the ID of the document's direct (deepest) category,
// or "" when the path is empty.
func (d *SearchDocument) CategoryID() string {
	if len(d.CategoryPath) == 0 {
		return ""
	}
	return d.CategoryPath[len(d.CategoryPath)-1].ID
}

// CategoryName returns the name of the document's direct category.
func (d *SearchDocument) CategoryName() string {
	if len(d.CategoryPath) == 0 {
		return ""
	}
	return d.CategoryPath[len(d.CategoryPath)-1].Name
}
