package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unir/products-search/internal/domain"
	apperrors "github.com/unir/products-search/pkg/errors"
	"github.com/unir/products-search/pkg/tracing"
)

var operationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "products_engine_operation_duration_seconds",
		Help:    "Duration of search engine operations in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	},
	[]string{"backend", "operation", "outcome"},
)

// Instrumented records a span and a duration sample for every call to the
// wrapped engine.
type Instrumented struct {
	next    ProductEngine
	backend string
	tracer  trace.Tracer
}

// Instrument wraps next; backend labels the metrics, e.g. "elasticsearch".
func Instrument(next ProductEngine, backend string) *Instrumented {
	return &Instrumented{
		next:    next,
		backend: backend,
		tracer:  tracing.Tracer("github.com/unir/products-search/internal/engine"),
	}
}

func observe[T any](ctx context.Context, i *Instrumented, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := i.tracer.Start(ctx, "engine."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", i.backend),
			attribute.String("db.operation", op),
		),
	)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)

	outcome := "ok"
	switch {
	case err == nil:
	case apperrors.IsClientError(err):
		outcome = "client_error"
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	operationDuration.WithLabelValues(i.backend, op, outcome).Observe(time.Since(start).Seconds())

	return v, err
}

func (i *Instrumented) Get(ctx context.Context, id string) (*domain.Product, error) {
	return observe(ctx, i, "get", func(ctx context.Context) (*domain.Product, error) {
		return i.next.Get(ctx, id)
	})
}

func (i *Instrumented) Search(ctx context.Context, q *domain.ProductQuery) (*domain.SearchResult, error) {
	return observe(ctx, i, "search", func(ctx context.Context) (*domain.SearchResult, error) {
		return i.next.Search(ctx, q)
	})
}

func (i *Instrumented) Index(ctx context.Context, product *domain.Product) error {
	_, err := observe(ctx, i, "index", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, i.next.Index(ctx, product)
	})
	return err
}

func (i *Instrumented) Delete(ctx context.Context, id string) error {
	_, err := observe(ctx, i, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, i.next.Delete(ctx, id)
	})
	return err
}

func (i *Instrumented) BulkIndex(ctx context.Context, products []domain.Product) error {
	_, err := observe(ctx, i, "bulk_index", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, i.next.BulkIndex(ctx, products)
	})
	return err
}

func (i *Instrumented) Suggest(ctx context.Context, name string, limit int) ([]string, error) {
	return observe(ctx, i, "suggest", func(ctx context.Context) ([]string, error) {
		return i.next.Suggest(ctx, name, limit)
	})
}

func (i *Instrumented) Facet(ctx context.Context, field domain.FacetField, size int) ([]string, error) {
	return observe(ctx, i, "facet_"+string(field), func(ctx context.Context) ([]string, error) {
		return i.next.Facet(ctx, field, size)
	})
}

func (i *Instrumented) CountVisible(ctx context.Context) (int64, error) {
	return observe(ctx, i, "count_visible", func(ctx context.Context) (int64, error) {
		return i.next.CountVisible(ctx)
	})
}
