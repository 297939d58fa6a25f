// Package query compiles structured search requests into the
// backend-agnostic query representation and owns facet aggregation specs.
// Everything in this package is pure: no I/O, deterministic output for
// identical input.
package query

import (
	"fmt"
	"sort"

	apperrors "github.com/marketloom/search-service/pkg/errors"

	"github.com/marketloom/search-service/internal/domain"
)

// Canonical document field paths shared by every backend.
const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldCategoryID   = "category_path.id"
	FieldCategoryName = "category_path.name"
	FieldBrandID      = "brand.id"
	FieldBrandName    = "brand.name"
	FieldTags         = "tags"
	FieldAttributes   = "attributes.*"
	FieldPrice        = "price.current"
	FieldRatingAvg    = "rating.average"
	FieldRatingFloor  = "rating_floor"
	FieldInStock      = "availability.in_stock"
	FieldStatus       = "status"
	FieldCreatedAt    = "created_at"
	FieldSuggest      = "suggest.input"
)

// Limits carries the configured pagination bounds the compiler validates
// against.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultLimits returns the standard pagination bounds.
func DefaultLimits() Limits {
	return Limits{DefaultLimit: 20, MaxLimit: 100}
}

// searchFields is the weighted field list for free-text matching. Name is
// boosted highest, then descriptive and taxonomy fields.
func searchFields() []domain.FieldBoost {
	return []domain.FieldBoost{
		{Field: FieldName, Boost: 3},
		{Field: FieldDescription, Boost: 1},
		{Field: FieldCategoryName, Boost: 1.5},
		{Field: FieldBrandName, Boost: 1.5},
		{Field: FieldTags, Boost: 1},
		{Field: FieldAttributes, Boost: 0.5},
	}
}

// Compile turns a SearchRequest into a CompiledQuery. It fails with an
// invalid-input error on out-of-bounds limits, an inverted price range, an
// unknown sort mode, or a malformed attribute filter. A page beyond the last
// page is not rejected here: it compiles to an offset that yields an empty,
// successful result.
func Compile(req *domain.SearchRequest, id domain.Identity, limits Limits) (*domain.CompiledQuery, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("page must be >= 1, got %d", page))
	}

	limit := req.Limit
	if limit == 0 {
		limit = limits.DefaultLimit
	}
	if limit < 1 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("limit must be >= 1, got %d", limit))
	}
	if limit > limits.MaxLimit {
		return nil, apperrors.InvalidInput(fmt.Sprintf("limit must not exceed %d, got %d", limits.MaxLimit, limit))
	}

	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		return nil, apperrors.InvalidInput("min_price must not exceed max_price")
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = domain.SortRelevance
	}
	if !domain.IsValidSort(string(sortBy)) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown sort mode %q", sortBy))
	}

	q := &domain.CompiledQuery{
		From: (page - 1) * limit,
		Size: limit,
	}

	// Must clause: weighted fuzzy text match, or match-all.
	if req.Query != "" {
		q.Must = append(q.Must, domain.Clause{
			Kind:   domain.ClauseMultiMatch,
			Fields: searchFields(),
			Text:   req.Query,
			Fuzzy:  true,
		})
		q.Highlight = &domain.HighlightSpec{
			Fields:  []string{FieldName, FieldDescription},
			PreTag:  "<em>",
			PostTag: "</em>",
		}
	} else {
		q.Must = append(q.Must, domain.Clause{Kind: domain.ClauseMatchAll})
	}

	// Status filtering is enforced at compile time: non-admin callers only
	// ever see active documents. Admin callers may supply a status, or none
	// to search across all statuses.
	if id.IsAdmin() {
		if req.Status != nil {
			q.Filter = append(q.Filter, domain.Clause{
				Kind:   domain.ClauseTerm,
				Field:  FieldStatus,
				Values: []string{string(*req.Status)},
			})
		}
	} else {
		q.Filter = append(q.Filter, domain.Clause{
			Kind:   domain.ClauseTerm,
			Field:  FieldStatus,
			Values: []string{string(domain.StatusActive)},
		})
	}

	filters, err := structuredFilters(req)
	if err != nil {
		return nil, err
	}
	q.Filter = append(q.Filter, filters...)

	q.Sort = sortClauses(sortBy, req.Query != "")

	return q, nil
}

// structuredFilters maps each structured request filter to an exact-term or
// range clause. Attribute filters are emitted in sorted key order so the
// compiled query is deterministic.
func structuredFilters(req *domain.SearchRequest) ([]domain.Clause, error) {
	var filters []domain.Clause

	if req.CategoryID != "" {
		// Matching on the full category path places a category filter on a
		// document when the requested category is any of its ancestors.
		filters = append(filters, domain.Clause{
			Kind:   domain.ClauseTerm,
			Field:  FieldCategoryID,
			Values: []string{req.CategoryID},
		})
	}

	switch len(req.BrandIDs) {
	case 0:
	case 1:
		filters = append(filters, domain.Clause{
			Kind:   domain.ClauseTerm,
			Field:  FieldBrandID,
			Values: []string{req.BrandIDs[0]},
		})
	default:
		filters = append(filters, domain.Clause{
			Kind:   domain.ClauseTerms,
			Field:  FieldBrandID,
			Values: append([]string(nil), req.BrandIDs...),
		})
	}

	if req.MinPrice != nil || req.MaxPrice != nil {
		filters = append(filters, domain.Clause{
			Kind:  domain.ClauseRange,
			Field: FieldPrice,
			Min:   req.MinPrice,
			Max:   req.MaxPrice,
		})
	}

	if req.MinRating != nil {
		filters = append(filters, domain.Clause{
			Kind:  domain.ClauseRange,
			Field: FieldRatingAvg,
			Min:   req.MinRating,
		})
	}

	if req.InStock != nil {
		filters = append(filters, domain.Clause{
			Kind:  domain.ClauseTerm,
			Field: FieldInStock,
			Bool:  req.InStock,
		})
	}

	keys := make([]string, 0, len(req.Attributes))
	for k := range req.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := req.Attributes[k]
		if k == "" || len(values) == 0 {
			return nil, apperrors.InvalidInput("attribute filters require a non-empty key and at least one value")
		}
		for _, v := range values {
			if v == "" {
				return nil, apperrors.InvalidInput(fmt.Sprintf("attribute filter %q has an empty value", k))
			}
		}
		kind := domain.ClauseTerm
		if len(values) > 1 {
			kind = domain.ClauseTerms
		}
		filters = append(filters, domain.Clause{
			Kind:   kind,
			Field:  "attributes." + k,
			Values: append([]string(nil), values...),
		})
	}

	return filters, nil
}

// sortClauses maps a sort mode to a deterministic sort-clause list.
// Relevance falls back to rating descending when there is no query text,
// since text-match score is undefined for match-all.
func sortClauses(mode domain.SortMode, hasQuery bool) []domain.SortSpec {
	switch mode {
	case domain.SortPriceAsc:
		return []domain.SortSpec{{Field: FieldPrice}}
	case domain.SortPriceDesc:
		return []domain.SortSpec{{Field: FieldPrice, Desc: true}}
	case domain.SortRating:
		return []domain.SortSpec{{Field: FieldRatingAvg, Desc: true}}
	case domain.SortNewest:
		return []domain.SortSpec{{Field: FieldCreatedAt, Desc: true}}
	default:
		if hasQuery {
			return []domain.SortSpec{{Field: domain.SortFieldScore, Desc: true}}
		}
		return []domain.SortSpec{{Field: FieldRatingAvg, Desc: true}}
	}
}
