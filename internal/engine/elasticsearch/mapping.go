package elasticsearch

// DefaultIndexName is the index used when none is configured.
const DefaultIndexName = "products"

// indexMapping declares description as search_as_you_type so that the
// description._2gram and description._3gram subfields exist for bool_prefix
// queries.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "properties": {
      "id":          { "type": "keyword" },
      "name":        { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "description": { "type": "search_as_you_type" },
      "country":     { "type": "keyword" },
      "category":    { "type": "keyword" },
      "visible":     { "type": "boolean" }
    }
  }
}`
