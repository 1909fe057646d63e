package engine

import (
	"context"

	"github.com/unir/products-search/internal/domain"
)

// ProductEngine is the search backend behind the products API. Implementations
// return errors wrapping apperrors.ErrNotFound for missing documents.
type ProductEngine interface {
	// Get fetches a document by id, ignoring visibility.
	Get(ctx context.Context, id string) (*domain.Product, error)

	// Search lists visible products matching q, or returns country buckets
	// when q.Aggregate is set.
	Search(ctx context.Context, q *domain.ProductQuery) (*domain.SearchResult, error)

	// Index writes a document, replacing any existing one with the same id.
	Index(ctx context.Context, product *domain.Product) error

	// Delete removes a document by id.
	Delete(ctx context.Context, id string) error

	// BulkIndex writes many documents in one round trip.
	BulkIndex(ctx context.Context, products []domain.Product) error

	// Suggest returns the names of products matching name, best match first.
	Suggest(ctx context.Context, name string, limit int) ([]string, error)

	// Facet returns the most frequent values of field.
	Facet(ctx context.Context, field domain.FacetField, size int) ([]string, error)

	// CountVisible returns the exact number of visible products.
	CountVisible(ctx context.Context) (int64, error)
}
