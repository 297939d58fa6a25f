package domain

// ClauseKind discriminates the query clause variants. The set is the
// backend-agnostic intersection every IndexBackend must support.
type ClauseKind string

const (
	ClauseMatchAll     ClauseKind = "match_all"
	ClauseMultiMatch   ClauseKind = "multi_match"
	ClauseTerm         ClauseKind = "term"
	ClauseTerms        ClauseKind = "terms"
	ClauseRange        ClauseKind = "range"
	ClausePrefix       ClauseKind = "prefix"
	ClausePhrasePrefix ClauseKind = "phrase_prefix"
)

// FieldBoost pairs a document field with its relative weight in a
// multi-field match.
type FieldBoost struct {
	Field string
	Boost float64
}

// Clause is one node of the compiled query. It is a tagged struct: Kind
// selects which of the remaining fields are meaningful. Components exchange
// these typed clauses; only a backend's translation layer renders them into
// its native query language.
type Clause struct {
	Kind ClauseKind

	// term / terms / range / prefix target a single field.
	Field string

	// multi_match / phrase_prefix search text across weighted fields.
	Fields []FieldBoost
	Text   string
	Fuzzy  bool

	// term uses Values[0]; terms is an any-of match over Values.
	Values []string

	// Boolean exact match (e.g. availability.in_stock).
	Bool *bool

	// range bounds, inclusive; nil means unbounded.
	Min *float64
	Max *float64
}

// AggKind discriminates aggregation spec variants.
type AggKind string

const (
	AggTerms  AggKind = "terms"
	AggRanges AggKind = "ranges"
)

// AggRange is one fixed bucket of a range aggregation. A nil bound is open.
type AggRange struct {
	Key  string
	From *float64
	To   *float64
}

// AggSpec describes one aggregation to compute alongside a search.
type AggSpec struct {
	Name  string
	Kind  AggKind
	Field string

	// terms options
	Size       int
	LabelField string // sibling field holding a display name for each key
	Descending bool   // numeric keys ordered descending (rating facet)

	// ranges options
	Ranges []AggRange
}

// SortSpec is one entry of the sort clause list. The pseudo-field
// SortFieldScore sorts by text-match score.
type SortSpec struct {
	Field string
	Desc  bool
}

// SortFieldScore is the pseudo sort field for relevance ordering.
const SortFieldScore = "_score"

// HighlightSpec asks the backend to return highlighted fragments for the
// listed fields.
type HighlightSpec struct {
	Fields  []string
	PreTag  string
	PostTag string
}

// CompiledQuery is the backend-agnostic intermediate representation between
// a SearchRequest and a concrete backend query. It is built once per request
// and never mutated afterwards; WithAggregations returns a copy.
type CompiledQuery struct {
	Must         []Clause
	Filter       []Clause
	Aggregations []AggSpec
	Sort         []SortSpec
	Highlight    *HighlightSpec
	From         int
	Size         int
}

// Clone returns a deep-enough copy: slices are duplicated so the copy can be
// extended without touching the original.
func (q *CompiledQuery) Clone() *CompiledQuery {
	cp := *q
	cp.Must = append([]Clause(nil), q.Must...)
	cp.Filter = append([]Clause(nil), q.Filter...)
	cp.Aggregations = append([]AggSpec(nil), q.Aggregations...)
	cp.Sort = append([]SortSpec(nil), q.Sort...)
	if q.Highlight != nil {
		h := *q.Highlight
		h.Fields = append([]string(nil), q.Highlight.Fields...)
		cp.Highlight = &h
	}
	return &cp
}
