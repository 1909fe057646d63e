package elasticsearch

import (
	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/pkg/pagination"
)

const facetAggregationName = "facet"

// descriptionFields are the search_as_you_type subfields queried with bool_prefix.
var descriptionFields = []string{"description", "description._2gram", "description._3gram"}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func visibleOnly() map[string]any {
	return term("visible", true)
}

// buildSearchQuery puts every clause in bool.must: country term, name match,
// description bool_prefix, or match_all when none of those apply. The
// visibility term is always appended.
func buildSearchQuery(q *domain.ProductQuery) map[string]any {
	must := make([]any, 0, 4)

	if q.Country != "" {
		must = append(must, term("country", q.Country))
	}
	if q.Name != "" {
		must = append(must, map[string]any{
			"match": map[string]any{"name": q.Name},
		})
	}
	if q.Description != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q.Description,
				"type":   "bool_prefix",
				"fields": descriptionFields,
			},
		})
	}
	if !q.HasFilters() {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}
	must = append(must, visibleOnly())

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"must": must},
		},
		"track_total_hits": true,
	}

	if q.Aggregate {
		body["size"] = 0
		body["aggs"] = map[string]any{
			domain.CountryAggregationName: map[string]any{
				"terms": map[string]any{
					"field": string(domain.FacetCountry),
					"size":  domain.CountryAggregationSize,
				},
			},
		}
		return body
	}

	page := pagination.New(q.Page, q.PerPage)
	body["from"] = page.Offset
	body["size"] = page.PerPage
	return body
}

// buildSuggestQuery collapses hits on the exact name so size counts
// distinct names.
func buildSuggestQuery(name string, limit int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"match": map[string]any{"name": name},
		},
		"collapse": map[string]any{"field": "name.keyword"},
		"size":     limit,
		"_source":  []string{"name"},
	}
}

func buildFacetQuery(field domain.FacetField, size int) map[string]any {
	return map[string]any{
		"size": 0,
		"aggs": map[string]any{
			facetAggregationName: map[string]any{
				"terms": map[string]any{
					"field": string(field),
					"size":  size,
				},
			},
		},
	}
}

func buildVisibleCountQuery() map[string]any {
	return map[string]any{
		"size":             0,
		"query":            visibleOnly(),
		"track_total_hits": true,
	}
}
