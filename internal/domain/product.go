package domain

import (
	"net/url"
	"strings"
)

// Product is the document stored in the products index. ID doubles as the
// document _id.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Country     string `json:"country"`
	Category    string `json:"category,omitempty"`
	Visible     bool   `json:"visible"`
}

// FacetField names a keyword field that can be aggregated into facets.
type FacetField string

const (
	FacetCountry  FacetField = "country"
	FacetCategory FacetField = "category"
)

// Valid reports whether f is one of the known facet fields.
func (f FacetField) Valid() bool {
	return f == FacetCountry || f == FacetCategory
}

// CountryAggregationName is the terms aggregation returned with aggregate=true.
const CountryAggregationName = "Country Aggregation"

// Result sizes used by the engines.
const (
	CountryAggregationSize = 1000
	FacetSize              = 10
	DefaultSuggestLimit    = 10
	MaxSuggestLimit        = 50
)

// ProductQuery holds the filters of a product listing. Empty strings mean
// "no filter" for that field.
type ProductQuery struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Country     string `json:"country,omitempty"`
	Aggregate   bool   `json:"aggregate"`
	Page        int    `json:"page"`
	PerPage     int    `json:"per_page"`
}

// HasFilters reports whether any text or keyword filter is set.
func (q ProductQuery) HasFilters() bool {
	return q.Name != "" || q.Description != "" || q.Country != ""
}

// Bucket is one terms-aggregation bucket as returned by an engine.
type Bucket struct {
	Key   string
	Count int64
}

// SearchResult is what an engine returns for a ProductQuery: either a page
// of hits or, for aggregate queries, country buckets.
type SearchResult struct {
	Products []Product
	Buckets  []Bucket
	Total    int64
}

// AggregationDetails is a country bucket plus a link that narrows the
// listing to that country.
type AggregationDetails struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
	URI   string `json:"uri"`
}

// QueryResult is the response body of a product listing.
type QueryResult struct {
	Products []Product            `json:"products"`
	Aggs     []AggregationDetails `json:"aggs"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PerPage    int                  `json:"per_page"`
	TotalPages int                  `json:"total_pages"`
}

// BulkItemError is a product the engine refused during a bulk write.
type BulkItemError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkIndexError reports the items of a bulk write that were not indexed.
// Every other item of the request was written.
type BulkIndexError struct {
	Failed []BulkItemError
}

func (e *BulkIndexError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, "id="+f.ID+": "+f.Reason)
	}
	return "bulk index: partial errors: " + strings.Join(msgs, "; ")
}

// FailedIDs returns the set of ids that were not indexed.
func (e *BulkIndexError) FailedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(e.Failed))
	for _, f := range e.Failed {
		ids[f.ID] = struct{}{}
	}
	return ids
}

// Bulk write outcomes.
const (
	BulkStatusOK      = "ok"
	BulkStatusPartial = "partial"
	BulkStatusFailed  = "failed"
)

// BulkResult is the response body of a bulk write.
type BulkResult struct {
	Indexed int             `json:"indexed"`
	Failed  []BulkItemError `json:"failed,omitempty"`
	Status  string          `json:"status"`
}

// AggregationURI builds the drill-down link for a country bucket:
//
//	<base>/products?country=<key>[&name=<name>][&description=<description>]
//
// The name and description parts carry over the filters of q when set.
func AggregationURI(base, key string, q ProductQuery) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString("/products?country=")
	b.WriteString(url.QueryEscape(key))
	if q.Name != "" {
		b.WriteString("&name=")
		b.WriteString(url.QueryEscape(q.Name))
	}
	if q.Description != "" {
		b.WriteString("&description=")
		b.WriteString(url.QueryEscape(q.Description))
	}
	return b.String()
}
