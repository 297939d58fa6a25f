package query

import (
	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/engine"
)

// Facet cardinality and the fixed price bucket boundaries. Fixed ranges are
// a deliberate simplification over dynamic histogramming.
const termFacetSize = 20

func priceRanges() []domain.AggRange {
	f := func(v float64) *float64 { return &v }
	return []domain.AggRange{
		{Key: "0-50", From: f(0), To: f(50)},
		{Key: "50-100", From: f(50), To: f(100)},
		{Key: "100-200", From: f(100), To: f(200)},
		{Key: "200-500", From: f(200), To: f(500)},
		{Key: "500+", From: f(500)},
	}
}

// aggSpecFor maps a facet field to its aggregation spec.
func aggSpecFor(f domain.FacetField) (domain.AggSpec, bool) {
	switch f {
	case domain.FacetCategory:
		return domain.AggSpec{
			Name:       string(domain.FacetCategory),
			Kind:       domain.AggTerms,
			Field:      FieldCategoryID,
			Size:       termFacetSize,
			LabelField: FieldCategoryName,
		}, true
	case domain.FacetBrand:
		return domain.AggSpec{
			Name:       string(domain.FacetBrand),
			Kind:       domain.AggTerms,
			Field:      FieldBrandID,
			Size:       termFacetSize,
			LabelField: FieldBrandName,
		}, true
	case domain.FacetPrice:
		return domain.AggSpec{
			Name:   string(domain.FacetPrice),
			Kind:   domain.AggRanges,
			Field:  FieldPrice,
			Ranges: priceRanges(),
		}, true
	case domain.FacetRating:
		return domain.AggSpec{
			Name:       string(domain.FacetRating),
			Kind:       domain.AggTerms,
			Field:      FieldRatingFloor,
			Size:       6,
			Descending: true,
		}, true
	}
	return domain.AggSpec{}, false
}

// WithAggregations returns a copy of the compiled query with aggregation
// specs attached for the requested facets. Unknown facet names are skipped.
// Facets are computed on the fully filtered query: selecting a brand narrows
// the brand facet's own sibling counts (single-select faceting).
func WithAggregations(q *domain.CompiledQuery, requested []domain.FacetField) *domain.CompiledQuery {
	out := q.Clone()
	for _, f := range requested {
		if spec, ok := aggSpecFor(f); ok {
			out.Aggregations = append(out.Aggregations, spec)
		}
	}
	return out
}

// ParseFacets converts raw aggregation buckets into typed facet results,
// one per requested facet, in request order. A facet with zero buckets is
// valid and yields an empty bucket list. Bucket order from the backend is
// preserved as the display order.
func ParseFacets(raw map[string][]engine.AggBucket, requested []domain.FacetField) []domain.FacetResult {
	if len(requested) == 0 {
		return nil
	}

	results := make([]domain.FacetResult, 0, len(requested))
	for _, f := range requested {
		if _, ok := aggSpecFor(f); !ok {
			continue
		}
		buckets := raw[string(f)]
		fr := domain.FacetResult{
			Field:   f,
			Buckets: make([]domain.FacetBucket, 0, len(buckets)),
		}
		for _, b := range buckets {
			fr.Buckets = append(fr.Buckets, domain.FacetBucket{
				Key:   b.Key,
				Count: b.Count,
				Label: b.Label,
			})
		}
		results = append(results, fr)
	}
	return results
}
