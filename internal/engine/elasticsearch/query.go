package elasticsearch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/marketloom/search-service/internal/domain"
	"github.com/marketloom/search-service/internal/engine"
)

// labelAggName is the sub-aggregation name used to resolve display labels
// for terms buckets (e.g. category names next to category IDs).
const labelAggName = "label"

// buildSearchBody renders a compiled query into the Elasticsearch query DSL.
// The compiled clauses are the only input; no request-level types leak in here.
func buildSearchBody(query *domain.CompiledQuery) map[string]interface{} {
	boolQuery := map[string]interface{}{}

	must := make([]interface{}, 0, len(query.Must))
	for _, c := range query.Must {
		must = append(must, clauseToMap(c))
	}
	if len(must) > 0 {
		boolQuery["must"] = must
	}

	filter := make([]interface{}, 0, len(query.Filter))
	for _, c := range query.Filter {
		filter = append(filter, clauseToMap(c))
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	body := map[string]interface{}{
		"query":            map[string]interface{}{"bool": boolQuery},
		"from":             query.From,
		"size":             query.Size,
		"track_total_hits": true,
	}

	if len(query.Sort) > 0 {
		sorts := make([]interface{}, 0, len(query.Sort))
		for _, s := range query.Sort {
			dir := "asc"
			if s.Desc {
				dir = "desc"
			}
			sorts = append(sorts, map[string]interface{}{s.Field: dir})
		}
		body["sort"] = sorts
	}

	if len(query.Aggregations) > 0 {
		aggs := make(map[string]interface{}, len(query.Aggregations))
		for _, spec := range query.Aggregations {
			aggs[spec.Name] = aggToMap(spec)
		}
		body["aggs"] = aggs
	}

	if h := query.Highlight; h != nil {
		fields := make(map[string]interface{}, len(h.Fields))
		for _, f := range h.Fields {
			fields[f] = map[string]interface{}{}
		}
		body["highlight"] = map[string]interface{}{
			"fields":    fields,
			"pre_tags":  []string{h.PreTag},
			"post_tags": []string{h.PostTag},
		}
	}

	return body
}

func clauseToMap(c domain.Clause) map[string]interface{} {
	switch c.Kind {
	case domain.ClauseMatchAll:
		return map[string]interface{}{"match_all": map[string]interface{}{}}

	case domain.ClauseMultiMatch:
		mm := map[string]interface{}{
			"query":  c.Text,
			"fields": boostedFields(c.Fields),
			"type":   "best_fields",
		}
		if c.Fuzzy {
			mm["fuzziness"] = "AUTO"
			mm["prefix_length"] = 1
		}
		return map[string]interface{}{"multi_match": mm}

	case domain.ClauseTerm:
		if c.Bool != nil {
			return map[string]interface{}{
				"term": map[string]interface{}{c.Field: *c.Bool},
			}
		}
		var value string
		if len(c.Values) > 0 {
			value = c.Values[0]
		}
		return map[string]interface{}{
			"term": map[string]interface{}{c.Field: value},
		}

	case domain.ClauseTerms:
		return map[string]interface{}{
			"terms": map[string]interface{}{c.Field: c.Values},
		}

	case domain.ClauseRange:
		bounds := map[string]interface{}{}
		if c.Min != nil {
			bounds["gte"] = *c.Min
		}
		if c.Max != nil {
			bounds["lte"] = *c.Max
		}
		return map[string]interface{}{
			"range": map[string]interface{}{c.Field: bounds},
		}

	case domain.ClausePrefix:
		return map[string]interface{}{
			"prefix": map[string]interface{}{c.Field: c.Text},
		}

	case domain.ClausePhrasePrefix:
		return map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  c.Text,
				"fields": boostedFields(c.Fields),
				"type":   "phrase_prefix",
			},
		}

	default:
		return map[string]interface{}{"match_none": map[string]interface{}{}}
	}
}

func boostedFields(fields []domain.FieldBoost) []string {
	out := make([]string, 0, len(fields))
	for _, fb := range fields {
		if fb.Boost != 0 && fb.Boost != 1 {
			out = append(out, fmt.Sprintf("%s^%g", fb.Field, fb.Boost))
			continue
		}
		out = append(out, fb.Field)
	}
	return out
}

func aggToMap(spec domain.AggSpec) map[string]interface{} {
	switch spec.Kind {
	case domain.AggRanges:
		ranges := make([]interface{}, 0, len(spec.Ranges))
		for _, r := range spec.Ranges {
			entry := map[string]interface{}{"key": r.Key}
			if r.From != nil {
				entry["from"] = *r.From
			}
			if r.To != nil {
				entry["to"] = *r.To
			}
			ranges = append(ranges, entry)
		}
		return map[string]interface{}{
			"range": map[string]interface{}{
				"field":  spec.Field,
				"ranges": ranges,
			},
		}

	default: // terms
		terms := map[string]interface{}{
			"field": spec.Field,
			"size":  spec.Size,
		}
		if spec.Descending {
			terms["order"] = map[string]interface{}{"_key": "desc"}
		}
		agg := map[string]interface{}{"terms": terms}
		if spec.LabelField != "" {
			agg["aggs"] = map[string]interface{}{
				labelAggName: map[string]interface{}{
					"terms": map[string]interface{}{
						"field": spec.LabelField,
						"size":  1,
					},
				},
			}
		}
		return agg
	}
}

// esAggBucket is one raw aggregation bucket. Key arrives as a string for
// keyword fields and as a number for numeric fields, so it is decoded lazily.
type esAggBucket struct {
	Key      json.RawMessage `json:"key"`
	DocCount int             `json:"doc_count"`
	Label    *struct {
		Buckets []esAggBucket `json:"buckets"`
	} `json:"label"`
}

type esAggResult struct {
	Buckets []esAggBucket `json:"buckets"`
}

// parseAggregations decodes the raw aggregations block of a search response
// into ordered buckets, resolving label sub-aggregations when present.
func parseAggregations(raw map[string]json.RawMessage, specs []domain.AggSpec) (map[string][]engine.AggBucket, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(map[string][]engine.AggBucket, len(specs))
	for _, spec := range specs {
		data, ok := raw[spec.Name]
		if !ok {
			continue
		}

		var result esAggResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode aggregation %q: %w", spec.Name, err)
		}

		buckets := make([]engine.AggBucket, 0, len(result.Buckets))
		for _, b := range result.Buckets {
			bucket := engine.AggBucket{
				Key:   bucketKey(b.Key),
				Count: b.DocCount,
			}
			if b.Label != nil && len(b.Label.Buckets) > 0 {
				bucket.Label = bucketKey(b.Label.Buckets[0].Key)
			}
			buckets = append(buckets, bucket)
		}
		out[spec.Name] = buckets
	}
	return out, nil
}

// bucketKey normalizes a raw bucket key to its string form. Numeric keys
// render without a decimal part when they are whole.
func bucketKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return string(raw)
}
