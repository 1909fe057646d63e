package http

import (
	"net/http"

	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/pkg/httputil"
)

// CountryFacet handles GET /products/facets/country
func (h *ProductHandler) CountryFacet(w http.ResponseWriter, r *http.Request) {
	h.facet(w, r, domain.FacetCountry)
}

// CategoryFacet handles GET /products/facets/category
func (h *ProductHandler) CategoryFacet(w http.ResponseWriter, r *http.Request) {
	h.facet(w, r, domain.FacetCategory)
}

func (h *ProductHandler) facet(w http.ResponseWriter, r *http.Request, field domain.FacetField) {
	keys, err := h.service.Facet(r.Context(), field)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, keys)
}

// VisibleCount handles GET /products/facets/visible/count
func (h *ProductHandler) VisibleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.CountVisible(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]int64{"count": count})
}
