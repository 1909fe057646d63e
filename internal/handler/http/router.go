package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unir/products-search/internal/service"
	"github.com/unir/products-search/pkg/health"
	"github.com/unir/products-search/pkg/middleware"
)

// ServiceName labels HTTP metrics and server spans.
const ServiceName = "products-service"

// NewRouter creates a chi router with all product routes registered.
func NewRouter(
	productService *service.ProductService,
	healthHandler *health.Handler,
	cors middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.CORS(cors))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewProductHandler(productService, logger)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Post("/", h.CreateProduct)
		r.Post("/bulk", h.BulkIndex)
		r.Get("/suggestions", h.Suggest)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(30))
			r.Get("/facets/country", h.CountryFacet)
			r.Get("/facets/category", h.CategoryFacet)
			r.Get("/facets/visible/count", h.VisibleCount)
		})

		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})

	return r
}
