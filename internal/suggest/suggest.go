// Package suggest implements autocomplete over the search index. Two
// candidate paths are merged: completion-style matches on the dedicated
// suggest inputs, and phrase-prefix matches on name, category and brand
// fields for mid-phrase hits the completion path misses.
package suggest

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/marketloom/search-service/pkg/errors"

	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/engine"
	"github.com/marketloom/search-service/internal/query"
)

const (
	// MinPrefixLen is the minimum number of runes in a trimmed prefix.
	MinPrefixLen = 2
	// MaxLimit caps the number of returned suggestions.
	MaxLimit = 20

	defaultLimit = 10

	completionWeight = 1.0
	phraseWeight     = 0.8
)

// Suggester serves autocomplete queries against an IndexBackend.
type Suggester struct {
	backend engine.IndexBackend
	logger  *slog.Logger
}

// New creates a suggester.
func New(backend engine.IndexBackend, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{backend: backend, logger: logger}
}

// Suggest returns up to limit suggestions for the given prefix, best first.
// Only active, in-stock documents contribute. The prefix must hold at least
// MinPrefixLen runes after trimming; limit is defaulted and clamped, never
// rejected.
func (s *Suggester) Suggest(ctx context.Context, prefix string, limit int) ([]domain.SuggestionEntry, error) {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < MinPrefixLen {
		return nil, apperrors.InvalidInput("prefix must be at least 2 characters")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	merged := make(map[string]domain.SuggestionEntry)

	completions, err := s.completionPath(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	mergeEntries(merged, completions)

	phrases, err := s.phrasePath(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	mergeEntries(merged, phrases)

	entries := make([]domain.SuggestionEntry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if pi, pj := entries[i].Type.Precedence(), entries[j].Type.Precedence(); pi != pj {
			return pi < pj
		}
		return entries[i].Text < entries[j].Text
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// completionPath matches the prefix against the dedicated suggest inputs.
// Each matching input of a hit becomes its own entry, classified by which
// document field it came from.
func (s *Suggester) completionPath(ctx context.Context, prefix string, limit int) ([]domain.SuggestionEntry, error) {
	result, err := s.execute(ctx, domain.Clause{
		Kind:   domain.ClausePhrasePrefix,
		Fields: []domain.FieldBoost{{Field: query.FieldSuggest, Boost: 1}},
		Text:   prefix,
	}, limit)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(prefix)
	var entries []domain.SuggestionEntry
	for _, hit := range result.Hits {
		doc := hit.Document
		for _, input := range doc.Suggest.Input {
			if !prefixMatches(input, lower) {
				continue
			}
			text, kind, sourceID := classify(&doc, input)
			entries = append(entries, domain.SuggestionEntry{
				Text:     text,
				Type:     kind,
				Score:    hit.Score * completionWeight,
				SourceID: sourceID,
			})
		}
	}
	return entries, nil
}

// phrasePath matches the prefix mid-phrase across name, category and brand
// fields. It always yields product entries: the document is the thing being
// found, whichever field matched.
func (s *Suggester) phrasePath(ctx context.Context, prefix string, limit int) ([]domain.SuggestionEntry, error) {
	result, err := s.execute(ctx, domain.Clause{
		Kind: domain.ClausePhrasePrefix,
		Fields: []domain.FieldBoost{
			{Field: query.FieldName, Boost: 1},
			{Field: query.FieldCategoryName, Boost: 1},
			{Field: query.FieldBrandName, Boost: 1},
		},
		Text: prefix,
	}, limit)
	if err != nil {
		return nil, err
	}

	var entries []domain.SuggestionEntry
	for _, hit := range result.Hits {
		entries = append(entries, domain.SuggestionEntry{
			Text:     hit.Document.Name,
			Type:     domain.SuggestionProduct,
			Score:    hit.Score * phraseWeight,
			SourceID: hit.Document.ID,
		})
	}
	return entries, nil
}

func (s *Suggester) execute(ctx context.Context, clause domain.Clause, limit int) (*engine.QueryResult, error) {
	q := &domain.CompiledQuery{
		Must: []domain.Clause{clause},
		Filter: []domain.Clause{
			{Kind: domain.ClauseTerm, Field: query.FieldStatus, Values: []string{string(domain.StatusActive)}},
			{Kind: domain.ClauseTerm, Field: query.FieldInStock, Bool: boolPtr(true)},
		},
		Sort: []domain.SortSpec{{Field: domain.SortFieldScore, Desc: true}},
		// Over-fetch so dedup across both paths still fills the limit.
		Size: limit * 2,
	}

	result, err := s.backend.Search(ctx, q)
	if err != nil {
		s.logger.WarnContext(ctx, "suggest query failed", slog.String("error", err.Error()))
		return nil, apperrors.Unavailable("suggestion backend unavailable", err)
	}
	return result, nil
}

// mergeEntries folds new entries into the accumulator, deduplicating by
// exact text and keeping the higher score.
func mergeEntries(acc map[string]domain.SuggestionEntry, entries []domain.SuggestionEntry) {
	for _, e := range entries {
		existing, ok := acc[e.Text]
		if !ok || e.Score > existing.Score {
			acc[e.Text] = e
		}
	}
}

// classify maps a matched suggest input back to its origin: brand, one of
// the path categories, or the product itself.
func classify(doc *domain.SearchDocument, input string) (text string, kind domain.SuggestionType, sourceID string) {
	if strings.EqualFold(input, doc.Brand.Name) && doc.Brand.Name != "" {
		return doc.Brand.Name, domain.SuggestionBrand, doc.Brand.ID
	}
	for _, c := range doc.CategoryPath {
		if strings.EqualFold(input, c.Name) {
			return c.Name, domain.SuggestionCategory, c.ID
		}
	}
	return input, domain.SuggestionProduct, doc.ID
}

// prefixMatches reports whether the input starts with the prefix or contains
// it at a word boundary, case-insensitively.
func prefixMatches(input, lowerPrefix string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, lowerPrefix) || strings.Contains(lower, " "+lowerPrefix)
}

func boolPtr(b bool) *bool { return &b }
