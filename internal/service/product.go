package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/internal/engine"
	apperrors "github.com/unir/products-search/pkg/errors"
	"github.com/unir/products-search/pkg/pagination"
)

// EventPublisher emits product change events. Failures never fail the
// request that caused them.
type EventPublisher interface {
	PublishProductCreated(ctx context.Context, product *domain.Product) error
	PublishProductUpdated(ctx context.Context, product *domain.Product) error
	PublishProductsUpdated(ctx context.Context, products []domain.Product) error
	PublishProductDeleted(ctx context.Context, id string) error
}

// ProductService implements the product operations on top of a search engine.
type ProductService struct {
	engine        engine.ProductEngine
	events        EventPublisher
	serverAddress string
	logger        *slog.Logger
}

// NewProductService creates the service. serverAddress is the public base
// URL used to build aggregation drill-down links.
func NewProductService(eng engine.ProductEngine, events EventPublisher, serverAddress string, logger *slog.Logger) *ProductService {
	return &ProductService{
		engine:        eng,
		events:        events,
		serverAddress: serverAddress,
		logger:        logger,
	}
}

// CreateProductInput holds the fields a client may set on a new product.
type CreateProductInput struct {
	Name        string
	Description string
	Country     string
	Category    string
	Visible     bool
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	product, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// SearchProducts lists visible products. With q.Aggregate set the result
// carries country buckets with drill-down links instead of products.
func (s *ProductService) SearchProducts(ctx context.Context, q *domain.ProductQuery) (*domain.QueryResult, error) {
	page := pagination.New(q.Page, q.PerPage)
	if err := page.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	q.Page, q.PerPage = page.Page, page.PerPage

	res, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	result := &domain.QueryResult{
		Products:   res.Products,
		Aggs:       make([]domain.AggregationDetails, 0, len(res.Buckets)),
		Total:      res.Total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: pagination.TotalPages(res.Total, q.PerPage),
	}
	if result.Products == nil {
		result.Products = []domain.Product{}
	}
	for _, b := range res.Buckets {
		result.Aggs = append(result.Aggs, domain.AggregationDetails{
			Key:   b.Key,
			Count: b.Count,
			URI:   domain.AggregationURI(s.serverAddress, b.Key, *q),
		})
	}

	s.logger.DebugContext(ctx, "products searched",
		slog.Bool("aggregate", q.Aggregate),
		slog.Int64("total", result.Total),
	)
	return result, nil
}

// CreateProduct assigns a new id and indexes the product.
func (s *ProductService) CreateProduct(ctx context.Context, input *CreateProductInput) (*domain.Product, error) {
	product := &domain.Product{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		Country:     input.Country,
		Category:    input.Category,
		Visible:     input.Visible,
	}

	if err := s.engine.Index(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	if err := s.events.PublishProductCreated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.created event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product created", slog.String("product_id", product.ID))
	return product, nil
}

// UpdateProduct replaces the document stored under id. The body id must
// equal the path id; a missing document is created.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, product *domain.Product) (*domain.Product, error) {
	if product.ID != id {
		return nil, apperrors.InvalidInput(fmt.Sprintf("product id %q does not match path id %q", product.ID, id))
	}

	if err := s.engine.Index(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	if err := s.events.PublishProductUpdated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.updated event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product updated", slog.String("product_id", product.ID))
	return product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if err := s.events.PublishProductDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.deleted event",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id))
	return nil
}

// BulkIndex writes all products in one request. Items the engine rejects
// are reported in the result; the rest are indexed and announced.
func (s *ProductService) BulkIndex(ctx context.Context, products []domain.Product) (*domain.BulkResult, error) {
	if len(products) == 0 {
		return nil, apperrors.InvalidInput("at least one product is required")
	}

	result := &domain.BulkResult{Indexed: len(products), Status: domain.BulkStatusOK}
	indexed := products

	if err := s.engine.BulkIndex(ctx, products); err != nil {
		var bulkErr *domain.BulkIndexError
		if !errors.As(err, &bulkErr) {
			return nil, fmt.Errorf("bulk index: %w", err)
		}

		failed := bulkErr.FailedIDs()
		indexed = make([]domain.Product, 0, len(products))
		for _, p := range products {
			if _, ok := failed[p.ID]; !ok {
				indexed = append(indexed, p)
			}
		}
		result.Indexed = len(indexed)
		result.Failed = bulkErr.Failed
		result.Status = domain.BulkStatusPartial
		if len(indexed) == 0 {
			result.Status = domain.BulkStatusFailed
		}
		s.logger.WarnContext(ctx, "bulk index rejected some products",
			slog.Int("count", len(products)),
			slog.Int("failed", len(bulkErr.Failed)),
		)
	}

	if len(indexed) > 0 {
		if err := s.events.PublishProductsUpdated(ctx, indexed); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish product.updated events",
				slog.Int("count", len(indexed)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "bulk index completed",
		slog.Int("indexed", result.Indexed),
		slog.String("status", result.Status),
	)
	return result, nil
}

// Suggest returns distinct names of products whose name matches, best
// match first.
func (s *ProductService) Suggest(ctx context.Context, name string, limit int) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	switch {
	case limit <= 0:
		limit = domain.DefaultSuggestLimit
	case limit > domain.MaxSuggestLimit:
		limit = domain.MaxSuggestLimit
	}

	names, err := s.engine.Suggest(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
		if len(unique) == limit {
			break
		}
	}
	return unique, nil
}

// Facet returns the top values of field across all products.
func (s *ProductService) Facet(ctx context.Context, field domain.FacetField) ([]string, error) {
	if !field.Valid() {
		return nil, apperrors.InvalidInput("unknown facet: " + string(field))
	}

	keys, err := s.engine.Facet(ctx, field, domain.FacetSize)
	if err != nil {
		return nil, fmt.Errorf("%s facet: %w", field, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *ProductService) CountVisible(ctx context.Context) (int64, error) {
	n, err := s.engine.CountVisible(ctx)
	if err != nil {
		return 0, fmt.Errorf("count visible products: %w", err)
	}
	return n, nil
}
