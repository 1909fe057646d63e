package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/internal/service"
	"github.com/unir/products-search/pkg/httputil"
	"github.com/unir/products-search/pkg/pagination"
	"github.com/unir/products-search/pkg/validator"
)

const (
	maxBodyBytes     = 1 << 20
	maxBulkBodyBytes = 10 << 20
)

// ProductHandler handles HTTP requests for the product endpoints.
type ProductHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateProductRequest is the JSON request body for creating a product.
// Visible is a pointer so that an omitted field fails validation instead of
// defaulting to false.
type CreateProductRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Country     string `json:"country" validate:"required"`
	Category    string `json:"category"`
	Visible     *bool  `json:"visible" validate:"required"`
}

// ProductRequest is the JSON request body for a full product write.
type ProductRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Country     string `json:"country" validate:"required"`
	Category    string `json:"category"`
	Visible     *bool  `json:"visible" validate:"required"`
}

func (r ProductRequest) toDomain() domain.Product {
	return domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Country:     r.Country,
		Category:    r.Category,
		Visible:     *r.Visible,
	}
}

// BulkIndexRequest is the JSON request body for bulk indexing products.
type BulkIndexRequest struct {
	Products []ProductRequest `json:"products" validate:"required,min=1,max=500,dive"`
}

// --- Handlers ---

// Search handles GET /products
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	h.logger.DebugContext(r.Context(), "search products request", slog.String("query", r.URL.RawQuery))

	query := &domain.ProductQuery{
		Name:        params.Get("name"),
		Description: params.Get("description"),
		Country:     params.Get("country"),
	}

	if v := params.Get("aggregate"); v != "" {
		aggregate, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, "INVALID_PARAMETER", "aggregate must be a boolean")
			return
		}
		query.Aggregate = aggregate
	}

	page, err := pagination.Parse(params)
	if err != nil {
		httputil.WriteBadRequest(w, "INVALID_PARAMETER", err.Error())
		return
	}
	query.Page = page.Page
	query.PerPage = page.PerPage

	result, err := h.service.SearchProducts(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// GetProduct handles GET /products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product)
}

// CreateProduct handles POST /products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), &service.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Country:     req.Country,
		Category:    req.Category,
		Visible:     *req.Visible,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product := req.toDomain()
	updated, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), &product)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, updated)
}

// DeleteProduct handles DELETE /products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// BulkIndex handles POST /products/bulk
func (h *ProductHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBodyBytes)

	var req BulkIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	products := make([]domain.Product, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, p.toDomain())
	}

	result, err := h.service.BulkIndex(r.Context(), products)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if result.Status != domain.BulkStatusOK {
		status = http.StatusMultiStatus
	}
	httputil.WriteData(w, status, result)
}

// Suggest handles GET /products/suggestions
func (h *ProductHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			httputil.WriteBadRequest(w, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = l
	}

	names, err := h.service.Suggest(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, names)
}
