package elasticsearch

// DefaultIndexName is the default Elasticsearch index for search documents.
const DefaultIndexName = "marketloom_search"

// buildIndexMapping returns the full JSON mapping for the search index.
// Names and suggest inputs carry an edge_ngram subfield for autocomplete;
// attribute values are mapped to keywords through a dynamic template so
// arbitrary attribute keys stay filterable and aggregatable.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "attribute_values": {
          "path_match": "attributes.*",
          "mapping": { "type": "keyword", "ignore_above": 256 }
        }
      }
    ],
    "properties": {
      "id":     { "type": "keyword" },
      "type":   { "type": "keyword" },
      "name":   { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "description": { "type": "text" },
      "category_path": {
        "properties": {
          "id":   { "type": "keyword" },
          "name": { "type": "keyword" }
        }
      },
      "brand": {
        "properties": {
          "id":   { "type": "keyword" },
          "name": { "type": "keyword" }
        }
      },
      "tags": { "type": "keyword" },
      "price": {
        "properties": {
          "current":  { "type": "double" },
          "original": { "type": "double" },
          "currency": { "type": "keyword" }
        }
      },
      "availability": {
        "properties": {
          "in_stock": { "type": "boolean" },
          "quantity": { "type": "integer" }
        }
      },
      "rating": {
        "properties": {
          "average": { "type": "float" },
          "count":   { "type": "integer" }
        }
      },
      "rating_floor": { "type": "integer" },
      "status":       { "type": "keyword" },
      "suggest": {
        "properties": {
          "input": {
            "type": "text",
            "analyzer": "autocomplete_analyzer",
            "search_analyzer": "autocomplete_search",
            "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } }
          },
          "weight": { "type": "integer" }
        }
      },
      "geo":        { "type": "geo_point" },
      "created_at": { "type": "date" },
      "updated_at": { "type": "date" }
    }
  }
}`
}
