// Package memory implements the index backend on plain in-process maps. It
// mirrors the Elasticsearch backend's observable behavior closely enough to
// run the full search stack in development and tests without a cluster.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/engine"
)

// Backend stores documents in memory and evaluates compiled queries
// directly against them.
type Backend struct {
	mu   sync.RWMutex
	docs map[string]domain.SearchDocument
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{docs: make(map[string]domain.SearchDocument)}
}

// EnsureIndex implements engine.IndexBackend. There is no schema to create.
func (b *Backend) EnsureIndex(ctx context.Context) error {
	return nil
}

// Health implements engine.IndexBackend.
func (b *Backend) Health(ctx context.Context) error {
	return nil
}

// BulkWrite implements engine.IndexBackend.
func (b *Backend) BulkWrite(ctx context.Context, ops []engine.BulkOp) ([]engine.ItemResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	results := make([]engine.ItemResult, 0, len(ops))
	for _, op := range ops {
		switch op.Action {
		case engine.BulkIndex:
			if op.Doc == nil {
				results = append(results, engine.ItemResult{ID: op.ID, Err: "index action without document"})
				continue
			}
			if op.Doc.ID == "" {
				results = append(results, engine.ItemResult{ID: op.ID, Err: "document has no id"})
				continue
			}
			b.docs[op.Doc.ID] = *op.Doc
			results = append(results, engine.ItemResult{ID: op.Doc.ID})
		case engine.BulkDelete:
			delete(b.docs, op.ID)
			results = append(results, engine.ItemResult{ID: op.ID})
		default:
			results = append(results, engine.ItemResult{ID: op.ID, Err: "unknown bulk action"})
		}
	}
	return results, nil
}

// Delete implements engine.IndexBackend. Deleting an absent ID is success.
func (b *Backend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, id)
	return nil
}

// Len returns the number of stored documents.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

// Search implements engine.IndexBackend.
func (b *Backend) Search(ctx context.Context, query *domain.CompiledQuery) (*engine.QueryResult, error) {
	start := time.Now()

	b.mu.RLock()
	docs := make([]domain.SearchDocument, 0, len(b.docs))
	for _, d := range b.docs {
		docs = append(docs, d)
	}
	b.mu.RUnlock()

	matched := make([]engine.Hit, 0)
	for _, doc := range docs {
		hit, ok := b.evaluate(doc, query)
		if !ok {
			continue
		}
		matched = append(matched, hit)
	}

	aggs := computeAggregations(matched, query.Aggregations)

	sortHits(matched, query.Sort)

	total := len(matched)
	from := query.From
	if from > total {
		from = total
	}
	to := from + query.Size
	if query.Size <= 0 || to > total {
		to = total
	}

	return &engine.QueryResult{
		Hits:         matched[from:to],
		Total:        total,
		TookMs:       time.Since(start).Milliseconds(),
		Aggregations: aggs,
	}, nil
}

// evaluate checks all clauses against one document and computes its score.
func (b *Backend) evaluate(doc domain.SearchDocument, query *domain.CompiledQuery) (engine.Hit, bool) {
	for _, clause := range query.Filter {
		if !matchClause(doc, clause) {
			return engine.Hit{}, false
		}
	}

	score := 0.0
	var highlights map[string][]string
	for _, clause := range query.Must {
		s, ok := scoreClause(doc, clause)
		if !ok {
			return engine.Hit{}, false
		}
		score += s

		if query.Highlight != nil && clause.Kind == domain.ClauseMultiMatch {
			highlights = buildHighlights(doc, clause.Text, query.Highlight)
		}
	}

	return engine.Hit{Document: doc, Score: score, Highlights: highlights}, true
}

func matchClause(doc domain.SearchDocument, clause domain.Clause) bool {
	_, ok := scoreClause(doc, clause)
	return ok
}

func scoreClause(doc domain.SearchDocument, clause domain.Clause) (float64, bool) {
	switch clause.Kind {
	case domain.ClauseMatchAll:
		return 1, true

	case domain.ClauseMultiMatch:
		return scoreMultiMatch(doc, clause)

	case domain.ClauseTerm:
		if clause.Bool != nil {
			v, ok := boolValue(doc, clause.Field)
			return 1, ok && v == *clause.Bool
		}
		if len(clause.Values) == 0 {
			return 0, false
		}
		return 1, containsValue(fieldValues(doc, clause.Field), clause.Values[0])

	case domain.ClauseTerms:
		values := fieldValues(doc, clause.Field)
		for _, want := range clause.Values {
			if containsValue(values, want) {
				return 1, true
			}
		}
		return 0, false

	case domain.ClauseRange:
		v, ok := numericValue(doc, clause.Field)
		if !ok {
			return 0, false
		}
		if clause.Min != nil && v < *clause.Min {
			return 0, false
		}
		if clause.Max != nil && v > *clause.Max {
			return 0, false
		}
		return 1, true

	case domain.ClausePrefix:
		prefix := strings.ToLower(clause.Text)
		for _, v := range fieldValues(doc, clause.Field) {
			for _, word := range strings.Fields(strings.ToLower(v)) {
				if strings.HasPrefix(word, prefix) {
					return 1, true
				}
			}
		}
		return 0, false

	case domain.ClausePhrasePrefix:
		return scorePhrasePrefix(doc, clause)

	default:
		return 0, false
	}
}

// scoreMultiMatch matches when at least one query token matches at least one
// searched field. The score sums the boost of every field a token matched,
// which approximates relevance ranking well enough for tests.
func scoreMultiMatch(doc domain.SearchDocument, clause domain.Clause) (float64, bool) {
	tokens := strings.Fields(strings.ToLower(clause.Text))
	if len(tokens) == 0 {
		return 1, true
	}

	score := 0.0
	anyMatched := false
	for _, token := range tokens {
		for _, fb := range clause.Fields {
			if fieldMatchesToken(doc, fb.Field, token, clause.Fuzzy) {
				score += fb.Boost
				anyMatched = true
			}
		}
	}
	return score, anyMatched
}

func scorePhrasePrefix(doc domain.SearchDocument, clause domain.Clause) (float64, bool) {
	phrase := strings.ToLower(strings.TrimSpace(clause.Text))
	if phrase == "" {
		return 0, false
	}

	score := 0.0
	matched := false
	for _, fb := range clause.Fields {
		for _, v := range fieldValues(doc, fb.Field) {
			lower := strings.ToLower(v)
			if strings.HasPrefix(lower, phrase) || strings.Contains(lower, " "+phrase) {
				score += fb.Boost
				matched = true
				break
			}
		}
	}
	return score, matched
}

func fieldMatchesToken(doc domain.SearchDocument, field, token string, fuzzy bool) bool {
	for _, v := range fieldValues(doc, field) {
		for _, word := range strings.Fields(strings.ToLower(v)) {
			if word == token || strings.HasPrefix(word, token) {
				return true
			}
			if fuzzy && len(token) > 3 && editDistanceAtMostOne(word, token) {
				return true
			}
		}
	}
	return false
}

// editDistanceAtMostOne reports whether two words differ by a single edit.
func editDistanceAtMostOne(a, b string) bool {
	if a == b {
		return true
	}
	la, lb := len(a), len(b)
	if la > lb {
		a, b = b, a
		la, lb = lb, la
	}
	if lb-la > 1 {
		return false
	}

	i, j, edits := 0, 0, 0
	for i < la && j < lb {
		if a[i] == b[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if la == lb {
			i++
		}
		j++
	}
	if j < lb || i < la {
		edits++
	}
	return edits <= 1
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// fieldValues resolves a document field path to its string values.
func fieldValues(doc domain.SearchDocument, field string) []string {
	switch field {
	case "name":
		return []string{doc.Name}
	case "description":
		return []string{doc.Description}
	case "status":
		return []string{string(doc.Status)}
	case "type":
		return []string{string(doc.Type)}
	case "tags":
		return doc.Tags
	case "brand.id":
		return []string{doc.Brand.ID}
	case "brand.name":
		return []string{doc.Brand.Name}
	case "category_path.id":
		ids := make([]string, 0, len(doc.CategoryPath))
		for _, c := range doc.CategoryPath {
			ids = append(ids, c.ID)
		}
		return ids
	case "category_path.name":
		names := make([]string, 0, len(doc.CategoryPath))
		for _, c := range doc.CategoryPath {
			names = append(names, c.Name)
		}
		return names
	case "suggest.input":
		return doc.Suggest.Input
	case "rating_floor":
		return []string{strconv.Itoa(doc.RatingFloor)}
	case "attributes.*":
		values := make([]string, 0, len(doc.Attributes))
		for _, v := range doc.Attributes {
			values = append(values, v)
		}
		return values
	}

	if key, ok := strings.CutPrefix(field, "attributes."); ok {
		if v, exists := doc.Attributes[key]; exists {
			return []string{v}
		}
		return nil
	}
	return nil
}

func numericValue(doc domain.SearchDocument, field string) (float64, bool) {
	switch field {
	case "price.current":
		return doc.Price.Current, true
	case "price.original":
		return doc.Price.Original, true
	case "rating.average":
		return doc.Rating.Average, true
	case "rating_floor":
		return float64(doc.RatingFloor), true
	case "availability.quantity":
		return float64(doc.Availability.Quantity), true
	case "created_at":
		return float64(doc.CreatedAt.UnixNano()), true
	case "updated_at":
		return float64(doc.UpdatedAt.UnixNano()), true
	}
	return 0, false
}

func boolValue(doc domain.SearchDocument, field string) (bool, bool) {
	switch field {
	case "availability.in_stock":
		return doc.Availability.InStock, true
	}
	return false, false
}

func buildHighlights(doc domain.SearchDocument, text string, spec *domain.HighlightSpec) map[string][]string {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil
	}

	highlights := make(map[string][]string)
	for _, field := range spec.Fields {
		for _, value := range fieldValues(doc, field) {
			fragment, hit := highlightValue(value, tokens, spec.PreTag, spec.PostTag)
			if hit {
				highlights[field] = append(highlights[field], fragment)
			}
		}
	}
	if len(highlights) == 0 {
		return nil
	}
	return highlights
}

func highlightValue(value string, tokens []string, preTag, postTag string) (string, bool) {
	words := strings.Fields(value)
	hit := false
	for i, word := range words {
		lower := strings.ToLower(word)
		for _, token := range tokens {
			if lower == token || strings.HasPrefix(lower, token) {
				words[i] = preTag + word + postTag
				hit = true
				break
			}
		}
	}
	return strings.Join(words, " "), hit
}

// sortHits orders hits by the sort specs, falling back to document ID for a
// stable order on full ties.
func sortHits(hits []engine.Hit, specs []domain.SortSpec) {
	sort.SliceStable(hits, func(i, j int) bool {
		for _, spec := range specs {
			var vi, vj float64
			if spec.Field == domain.SortFieldScore {
				vi, vj = hits[i].Score, hits[j].Score
			} else {
				vi, _ = numericValue(hits[i].Document, spec.Field)
				vj, _ = numericValue(hits[j].Document, spec.Field)
			}
			if vi == vj {
				continue
			}
			if spec.Desc {
				return vi > vj
			}
			return vi < vj
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
}

func computeAggregations(hits []engine.Hit, specs []domain.AggSpec) map[string][]engine.AggBucket {
	if len(specs) == 0 {
		return nil
	}

	aggs := make(map[string][]engine.AggBucket, len(specs))
	for _, spec := range specs {
		switch spec.Kind {
		case domain.AggTerms:
			aggs[spec.Name] = termsAgg(hits, spec)
		case domain.AggRanges:
			aggs[spec.Name] = rangesAgg(hits, spec)
		}
	}
	return aggs
}

func termsAgg(hits []engine.Hit, spec domain.AggSpec) []engine.AggBucket {
	counts := make(map[string]int)
	labels := make(map[string]string)

	for _, hit := range hits {
		keys := fieldValues(hit.Document, spec.Field)
		var labelValues []string
		if spec.LabelField != "" {
			labelValues = fieldValues(hit.Document, spec.LabelField)
		}
		seen := make(map[string]struct{}, len(keys))
		for i, key := range keys {
			if key == "" {
				continue
			}
			// A document counts once per key even when the key repeats.
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			counts[key]++
			if i < len(labelValues) {
				labels[key] = labelValues[i]
			}
		}
	}

	buckets := make([]engine.AggBucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, engine.AggBucket{Key: key, Count: count, Label: labels[key]})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if spec.Descending {
			ni, _ := strconv.Atoi(buckets[i].Key)
			nj, _ := strconv.Atoi(buckets[j].Key)
			return ni > nj
		}
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})

	if spec.Size > 0 && len(buckets) > spec.Size {
		buckets = buckets[:spec.Size]
	}
	return buckets
}

// rangesAgg counts documents per fixed range. From is inclusive, To is
// exclusive, matching Elasticsearch range aggregation semantics. Empty
// buckets are kept so the UI always shows the full price ladder.
func rangesAgg(hits []engine.Hit, spec domain.AggSpec) []engine.AggBucket {
	buckets := make([]engine.AggBucket, 0, len(spec.Ranges))
	for _, r := range spec.Ranges {
		count := 0
		for _, hit := range hits {
			v, ok := numericValue(hit.Document, spec.Field)
			if !ok {
				continue
			}
			if r.From != nil && v < *r.From {
				continue
			}
			if r.To != nil && v >= *r.To {
				continue
			}
			count++
		}
		buckets = append(buckets, engine.AggBucket{Key: r.Key, Count: count})
	}
	return buckets
}
