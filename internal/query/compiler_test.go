package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketloom/search-service/internal/domain"
	apperrors "github.com/marketloom/search-service/pkg/errors"
)

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func user() domain.Identity  { return domain.Identity{Key: "u1", Role: "user"} }
func admin() domain.Identity { return domain.Identity{Key: "a1", Role: "admin"} }

func findFilter(t *testing.T, q *domain.CompiledQuery, field string) domain.Clause {
	t.Helper()
	for _, c := range q.Filter {
		if c.Field == field {
			return c
		}
	}
	t.Fatalf("no filter clause on field %q", field)
	return domain.Clause{}
}

func TestCompile_TextQueryBuildsWeightedMultiMatch(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{Query: "gaming laptop"}, user(), DefaultLimits())
	require.NoError(t, err)

	require.Len(t, q.Must, 1)
	must := q.Must[0]
	assert.Equal(t, domain.ClauseMultiMatch, must.Kind)
	assert.Equal(t, "gaming laptop", must.Text)
	assert.True(t, must.Fuzzy)

	boosts := map[string]float64{}
	for _, fb := range must.Fields {
		boosts[fb.Field] = fb.Boost
	}
	assert.Equal(t, 3.0, boosts[FieldName], "name carries the highest weight")
	assert.Equal(t, 1.5, boosts[FieldBrandName])
	assert.Equal(t, 1.5, boosts[FieldCategoryName])

	require.NotNil(t, q.Highlight)
	assert.Equal(t, []string{FieldName, FieldDescription}, q.Highlight.Fields)

	require.Len(t, q.Sort, 1)
	assert.Equal(t, domain.SortSpec{Field: domain.SortFieldScore, Desc: true}, q.Sort[0])
}

func TestCompile_EmptyQueryIsMatchAllSortedByRating(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{}, user(), DefaultLimits())
	require.NoError(t, err)

	require.Len(t, q.Must, 1)
	assert.Equal(t, domain.ClauseMatchAll, q.Must[0].Kind)
	assert.Nil(t, q.Highlight)

	require.Len(t, q.Sort, 1)
	assert.Equal(t, domain.SortSpec{Field: FieldRatingAvg, Desc: true}, q.Sort[0],
		"relevance without query text falls back to rating")
}

func TestCompile_NonAdminAlwaysFiltersToActive(t *testing.T) {
	draft := domain.StatusDraft
	q, err := Compile(&domain.SearchRequest{Status: &draft}, user(), DefaultLimits())
	require.NoError(t, err)

	status := findFilter(t, q, FieldStatus)
	assert.Equal(t, []string{"active"}, status.Values, "non-admin status is forced to active")
}

func TestCompile_AdminStatusHandling(t *testing.T) {
	draft := domain.StatusDraft
	q, err := Compile(&domain.SearchRequest{Status: &draft}, admin(), DefaultLimits())
	require.NoError(t, err)
	status := findFilter(t, q, FieldStatus)
	assert.Equal(t, []string{"draft"}, status.Values)

	q, err = Compile(&domain.SearchRequest{}, admin(), DefaultLimits())
	require.NoError(t, err)
	for _, c := range q.Filter {
		assert.NotEqual(t, FieldStatus, c.Field, "admin without status searches all statuses")
	}
}

func TestCompile_StructuredFilters(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{
		CategoryID: "c-laptops",
		BrandIDs:   []string{"b1", "b2"},
		MinPrice:   floatPtr(100),
		MaxPrice:   floatPtr(500),
		MinRating:  floatPtr(4),
		InStock:    boolPtr(true),
	}, user(), DefaultLimits())
	require.NoError(t, err)

	category := findFilter(t, q, FieldCategoryID)
	assert.Equal(t, domain.ClauseTerm, category.Kind)
	assert.Equal(t, []string{"c-laptops"}, category.Values)

	brand := findFilter(t, q, FieldBrandID)
	assert.Equal(t, domain.ClauseTerms, brand.Kind, "multiple brands compile to an any-of clause")
	assert.Equal(t, []string{"b1", "b2"}, brand.Values)

	price := findFilter(t, q, FieldPrice)
	assert.Equal(t, domain.ClauseRange, price.Kind)
	assert.Equal(t, 100.0, *price.Min)
	assert.Equal(t, 500.0, *price.Max)

	rating := findFilter(t, q, FieldRatingAvg)
	assert.Equal(t, 4.0, *rating.Min)
	assert.Nil(t, rating.Max)

	stock := findFilter(t, q, FieldInStock)
	require.NotNil(t, stock.Bool)
	assert.True(t, *stock.Bool)
}

func TestCompile_SingleBrandUsesTermClause(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{BrandIDs: []string{"b1"}}, user(), DefaultLimits())
	require.NoError(t, err)

	brand := findFilter(t, q, FieldBrandID)
	assert.Equal(t, domain.ClauseTerm, brand.Kind)
}

func TestCompile_AttributeFiltersSortedByKey(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{
		Attributes: map[string][]string{
			"size":  {"m", "l"},
			"color": {"red"},
		},
	}, user(), DefaultLimits())
	require.NoError(t, err)

	var attrFields []string
	for _, c := range q.Filter {
		if c.Field == "attributes.color" || c.Field == "attributes.size" {
			attrFields = append(attrFields, c.Field)
		}
	}
	assert.Equal(t, []string{"attributes.color", "attributes.size"}, attrFields,
		"attribute clauses are emitted in sorted key order")

	color := findFilter(t, q, "attributes.color")
	assert.Equal(t, domain.ClauseTerm, color.Kind)
	size := findFilter(t, q, "attributes.size")
	assert.Equal(t, domain.ClauseTerms, size.Kind)
}

func TestCompile_Pagination(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{Page: 3, Limit: 25}, user(), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 50, q.From)
	assert.Equal(t, 25, q.Size)

	q, err = Compile(&domain.SearchRequest{}, user(), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 0, q.From)
	assert.Equal(t, 20, q.Size, "defaults applied when page and limit are omitted")

	// A page past the last one compiles; the backend returns an empty page.
	q, err = Compile(&domain.SearchRequest{Page: 9999}, user(), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 9998*20, q.From)
}

func TestCompile_SortModes(t *testing.T) {
	tests := []struct {
		mode domain.SortMode
		want domain.SortSpec
	}{
		{domain.SortPriceAsc, domain.SortSpec{Field: FieldPrice}},
		{domain.SortPriceDesc, domain.SortSpec{Field: FieldPrice, Desc: true}},
		{domain.SortRating, domain.SortSpec{Field: FieldRatingAvg, Desc: true}},
		{domain.SortNewest, domain.SortSpec{Field: FieldCreatedAt, Desc: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			q, err := Compile(&domain.SearchRequest{SortBy: tt.mode}, user(), DefaultLimits())
			require.NoError(t, err)
			require.Len(t, q.Sort, 1)
			assert.Equal(t, tt.want, q.Sort[0])
		})
	}
}

func TestCompile_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  *domain.SearchRequest
	}{
		{"negative page", &domain.SearchRequest{Page: -1}},
		{"zero limit below minimum", &domain.SearchRequest{Limit: -5}},
		{"limit above maximum", &domain.SearchRequest{Limit: 101}},
		{"inverted price range", &domain.SearchRequest{MinPrice: floatPtr(500), MaxPrice: floatPtr(100)}},
		{"unknown sort mode", &domain.SearchRequest{SortBy: "cheapest"}},
		{"attribute with empty value", &domain.SearchRequest{Attributes: map[string][]string{"color": {""}}}},
		{"attribute with no values", &domain.SearchRequest{Attributes: map[string][]string{"color": {}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.req, user(), DefaultLimits())
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestCompile_EqualMinMaxPriceIsValid(t *testing.T) {
	q, err := Compile(&domain.SearchRequest{MinPrice: floatPtr(100), MaxPrice: floatPtr(100)}, user(), DefaultLimits())
	require.NoError(t, err)

	price := findFilter(t, q, FieldPrice)
	assert.Equal(t, *price.Min, *price.Max)
}

func TestCompile_Deterministic(t *testing.T) {
	req := &domain.SearchRequest{
		Query:      "laptop",
		BrandIDs:   []string{"b1", "b2"},
		Attributes: map[string][]string{"color": {"red"}, "size": {"m"}},
	}

	a, err := Compile(req, user(), DefaultLimits())
	require.NoError(t, err)
	b, err := Compile(req, user(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
