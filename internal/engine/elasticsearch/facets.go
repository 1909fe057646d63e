package elasticsearch

import (
	"context"

	"github.com/unir/products-search/internal/domain"
	apperrors "github.com/unir/products-search/pkg/errors"
)

// Facet returns the keys of a terms aggregation on field over the whole
// index, most frequent first.
func (e *Engine) Facet(ctx context.Context, field domain.FacetField, size int) ([]string, error) {
	if !field.Valid() {
		return nil, apperrors.InvalidInput("unknown facet field: " + string(field))
	}

	resp, err := e.search(ctx, "facet "+string(field), buildFacetQuery(field, size))
	if err != nil {
		return nil, err
	}

	buckets := resp.Aggregations[facetAggregationName].Buckets
	keys := make([]string, 0, len(buckets))
	for _, b := range buckets {
		keys = append(keys, b.Key)
	}
	return keys, nil
}

// CountVisible returns the exact hit count of visible=true.
func (e *Engine) CountVisible(ctx context.Context) (int64, error) {
	resp, err := e.search(ctx, "count visible", buildVisibleCountQuery())
	if err != nil {
		return 0, err
	}
	return resp.Hits.Total.Value, nil
}
