// Package seed generates deterministic demo products and loads them in
// bulk batches.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/google/uuid"

	"github.com/unir/products-search/internal/domain"
)

// DefaultBatchSize matches the largest batch POST /products/bulk accepts.
const DefaultBatchSize = 500

// namespace keeps generated ids stable across runs.
var namespace = uuid.MustParse("6f1d3c8e-5a2b-4c7d-9e0f-1a2b3c4d5e6f")

var (
	countries  = []string{"ES", "FR", "DE", "IT", "PT", "NL", "BE", "US", "MX", "AR"}
	adjectives = []string{"Classic", "Modern", "Compact", "Deluxe", "Vintage", "Portable", "Smart", "Rustic"}
	nouns      = []string{"Lamp", "Desk", "Chair", "Shelf", "Rug", "Vase", "Mirror", "Clock", "Sofa", "Bench"}
	materials  = []string{"oak", "walnut", "brass", "steel", "glass", "linen", "wool", "ceramic"}
	categories = map[string]string{
		"Lamp": "lighting", "Desk": "furniture", "Chair": "furniture", "Shelf": "storage",
		"Rug": "textiles", "Vase": "decor", "Mirror": "decor", "Clock": "decor",
		"Sofa": "furniture", "Bench": "furniture",
	}
)

// ID returns the stable product id for index i.
func ID(i int) string {
	return uuid.NewSHA1(namespace, []byte(strconv.Itoa(i))).String()
}

// Generate returns n products. The same seed always yields the same products;
// roughly one in ten is hidden.
func Generate(n int, seed int64) []domain.Product {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // demo data

	products := make([]domain.Product, 0, n)
	for i := 0; i < n; i++ {
		adj := adjectives[rng.Intn(len(adjectives))]
		noun := nouns[rng.Intn(len(nouns))]
		material := materials[rng.Intn(len(materials))]

		products = append(products, domain.Product{
			ID:          ID(i),
			Name:        adj + " " + noun,
			Description: fmt.Sprintf("%s %s %s made of %s", adj, material, noun, material),
			Country:     countries[rng.Intn(len(countries))],
			Category:    categories[noun],
			Visible:     rng.Intn(10) != 0,
		})
	}
	return products
}

// BulkIndexer is the write side of a product engine.
type BulkIndexer interface {
	BulkIndex(ctx context.Context, products []domain.Product) error
}

// Load writes products in batches of batchSize and returns how many were
// indexed before the first failure.
func Load(ctx context.Context, idx BulkIndexer, products []domain.Product, batchSize int, logger *slog.Logger) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	indexed := 0
	for start := 0; start < len(products); start += batchSize {
		end := min(start+batchSize, len(products))
		if err := idx.BulkIndex(ctx, products[start:end]); err != nil {
			return indexed, fmt.Errorf("bulk index batch %d-%d: %w", start, end, err)
		}
		indexed = end
		logger.InfoContext(ctx, "batch indexed",
			slog.Int("from", start),
			slog.Int("to", end),
			slog.Int("total", len(products)),
		)
	}
	return indexed, nil
}
