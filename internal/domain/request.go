package domain

// SortMode selects the result ordering of a search.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortPriceAsc  SortMode = "price_asc"
	SortPriceDesc SortMode = "price_desc"
	SortRating    SortMode = "rating"
	SortNewest    SortMode = "newest"
)

// ValidSortModes returns the list of accepted sort modes.
func ValidSortModes() []SortMode {
	return []SortMode{SortRelevance, SortPriceAsc, SortPriceDesc, SortRating, SortNewest}
}

// IsValidSort checks whether the given sort string is a known sort mode.
func IsValidSort(s string) bool {
	for _, m := range ValidSortModes() {
		if string(m) == s {
			return true
		}
	}
	return false
}

// FacetField names a facet dimension a caller can request.
type FacetField string

const (
	FacetCategory FacetField = "category"
	FacetBrand    FacetField = "brand"
	FacetPrice    FacetField = "price"
	FacetRating   FacetField = "rating"
)

// AllFacetFields returns every supported facet dimension, in display order.
func AllFacetFields() []FacetField {
	return []FacetField{FacetCategory, FacetBrand, FacetPrice, FacetRating}
}

// IsValidFacet checks whether the given string names a supported facet.
func IsValidFacet(s string) bool {
	for _, f := range AllFacetFields() {
		if string(f) == s {
			return true
		}
	}
	return false
}

// SearchRequest holds all parameters of a structured search. It is
// request-scoped: built once at the boundary, validated by the compiler,
// never shared across requests.
type SearchRequest struct {
	Query      string              `json:"query"`
	CategoryID string              `json:"category_id,omitempty"`
	BrandIDs   []string            `json:"brand_ids,omitempty"`
	MinPrice   *float64            `json:"min_price,omitempty"`
	MaxPrice   *float64            `json:"max_price,omitempty"`
	MinRating  *float64            `json:"min_rating,omitempty"`
	InStock    *bool               `json:"in_stock,omitempty"`
	Status     *DocumentStatus     `json:"status,omitempty"` // honored for admin callers only
	Attributes map[string][]string `json:"attributes,omitempty"`
	SortBy     SortMode            `json:"sort_by"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	Facets     []FacetField        `json:"facets,omitempty"`
}

// FacetBucket is one entry of a facet breakdown. Label carries a display
// name when the bucket key is an identifier (e.g. a category ID).
type FacetBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Label string `json:"label,omitempty"`
}

// FacetResult is the computed breakdown for one requested facet. Bucket
// order is the display order contract: count descending for term facets,
// fixed range order for price.
type FacetResult struct {
	Field   FacetField    `json:"field"`
	Buckets []FacetBucket `json:"buckets"`
}

// SuggestionType classifies an autocomplete entry.
type SuggestionType string

const (
	SuggestionProduct  SuggestionType = "product"
	SuggestionCategory SuggestionType = "category"
	SuggestionBrand    SuggestionType = "brand"
)

// typePrecedence orders suggestion types for tie-breaking; products are the
// primary conversion target.
func (t SuggestionType) Precedence() int {
	switch t {
	case SuggestionProduct:
		return 0
	case SuggestionCategory:
		return 1
	default:
		return 2
	}
}

// SuggestionEntry is one autocomplete result.
type SuggestionEntry struct {
	Text     string         `json:"text"`
	Type     SuggestionType `json:"type"`
	Score    float64        `json:"score"`
	SourceID string         `json:"source_id"`
}

// SearchResponse is the assembled result of one search.
type SearchResponse struct {
	Products   []SearchDocument `json:"products"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
	Facets     []FacetResult    `json:"facets,omitempty"`
	TookMs     int64            `json:"took_ms"`
}

// Identity describes the caller of a search or suggest operation, as
// established by the gateway/auth collaborator.
type Identity struct {
	Key       string // user ID or client IP, used for rate limiting
	Role      string
	Locale    string
	SessionID string
}

// IsAdmin reports whether the caller has elevated privileges.
func (id Identity) IsAdmin() bool {
	return id.Role == "admin"
}
