package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/internal/engine"
	"github.com/unir/products-search/internal/engine/memory"
	"github.com/unir/products-search/internal/event"
	"github.com/unir/products-search/internal/service"
	"github.com/unir/products-search/pkg/health"
	"github.com/unir/products-search/pkg/middleware"
)

type response struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

var seedProducts = []domain.Product{
	{ID: "1", Name: "Desk Lamp", Description: "warm white led", Country: "ES", Category: "lighting", Visible: true},
	{ID: "2", Name: "Floor Lamp", Description: "tall brass lamp", Country: "ES", Category: "lighting", Visible: true},
	{ID: "3", Name: "Desk", Description: "oak standing desk", Country: "FR", Category: "furniture", Visible: true},
	{ID: "4", Name: "Hidden Lamp", Description: "draft product", Country: "DE", Category: "lighting", Visible: false},
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	eng := memory.New()
	require.NoError(t, eng.BulkIndex(context.Background(), seedProducts))
	return newRouterWithEngine(eng)
}

func newRouterWithEngine(eng engine.ProductEngine) http.Handler {

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := event.NewProducer(event.NopPublisher{}, logger)
	svc := service.NewProductService(eng, events, "http://localhost:8088", logger)

	return NewRouter(svc, health.NewHandler(), middleware.DefaultCORSConfig(), logger)
}

func do(t *testing.T, router http.Handler, method, target, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// --- Search ---

func TestSearch_FiltersVisibleProducts(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products?name=lamp", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.PerPage)
	assert.Equal(t, 1, result.TotalPages)
	for _, p := range result.Products {
		assert.True(t, p.Visible)
	}
	assert.Empty(t, result.Aggs)
}

func TestSearch_LastPageOfResultWindow(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products?page=100&per_page=100", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Empty(t, result.Products)
	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, 1, result.TotalPages)
}

func TestSearch_Aggregate(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products?aggregate=true&name=desk", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.QueryResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Empty(t, result.Products)
	require.Len(t, result.Aggs, 2)
	assert.Equal(t, domain.AggregationDetails{
		Key: "ES", Count: 1, URI: "http://localhost:8088/products?country=ES&name=desk",
	}, result.Aggs[0])
	assert.Equal(t, "FR", result.Aggs[1].Key)
}

func TestSearch_InvalidParameters(t *testing.T) {
	router := newTestRouter(t)

	for _, target := range []string{
		"/products?aggregate=maybe",
		"/products?page=0",
		"/products?per_page=abc",
		"/products?per_page=101",
		"/products?page=101&per_page=100",
		"/products?page=501",
		"/products?page=9223372036854775807&per_page=100",
		"/products?page=99999999999999999999",
	} {
		t.Run(target, func(t *testing.T) {
			w, resp := do(t, router, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
		})
	}
}

// --- Get / Create / Update / Delete ---

func TestGetProduct(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products/4", "")
	require.Equal(t, http.StatusOK, w.Code)

	var p domain.Product
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "Hidden Lamp", p.Name)
	assert.False(t, p.Visible)

	w, resp = do(t, router, http.MethodGet, "/products/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
}

func TestCreateProduct(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPost, "/products",
		`{"name":"Chair","description":"wooden chair","country":"IT","visible":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var p domain.Product
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Chair", p.Name)

	w, _ = do(t, router, http.MethodGet, "/products/"+p.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateProduct_Validation(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPost, "/products", `{"name":"Chair","description":"wooden chair"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "country")
	assert.Contains(t, resp.Error.Fields, "visible")
}

func TestCreateProduct_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPost, "/products", `{"name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestCreateProduct_RejectsBodyOver1MB(t *testing.T) {
	router := newTestRouter(t)

	body := `{"name":"` + strings.Repeat("x", 1<<20+1) + `"}`
	w, resp := do(t, router, http.MethodPost, "/products", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestUpdateProduct(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPut, "/products/3",
		`{"id":"3","name":"Standing Desk","description":"oak","country":"FR","visible":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	var p domain.Product
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "Standing Desk", p.Name)
	assert.False(t, p.Visible)
}

func TestUpdateProduct_IDMismatch(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPut, "/products/3",
		`{"id":"9","name":"Desk","description":"oak","country":"FR","visible":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "does not match")
}

func TestDeleteProduct(t *testing.T) {
	router := newTestRouter(t)

	w, _ := do(t, router, http.MethodDelete, "/products/1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/products/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Bulk ---

func TestBulkIndex(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPost, "/products/bulk", `{"products":[
		{"id":"10","name":"Rug","description":"wool rug","country":"PT","visible":true},
		{"id":"11","name":"Vase","description":"glass vase","country":"PT","visible":true}
	]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, float64(2), data["indexed"])
	assert.Equal(t, "ok", data["status"])
	assert.NotContains(t, data, "failed")
}

// rejectingEngine refuses to bulk index the listed ids.
type rejectingEngine struct {
	*memory.Engine
	reject map[string]string
}

func (e *rejectingEngine) BulkIndex(ctx context.Context, products []domain.Product) error {
	var kept []domain.Product
	var failed []domain.BulkItemError
	for _, p := range products {
		if reason, ok := e.reject[p.ID]; ok {
			failed = append(failed, domain.BulkItemError{ID: p.ID, Reason: reason})
			continue
		}
		kept = append(kept, p)
	}
	if err := e.Engine.BulkIndex(ctx, kept); err != nil {
		return err
	}
	if len(failed) > 0 {
		return &domain.BulkIndexError{Failed: failed}
	}
	return nil
}

func TestBulkIndex_PartialFailure(t *testing.T) {
	router := newRouterWithEngine(&rejectingEngine{
		Engine: memory.New(),
		reject: map[string]string{"11": "mapper_parsing_exception: bad visible"},
	})

	w, resp := do(t, router, http.MethodPost, "/products/bulk", `{"products":[
		{"id":"10","name":"Rug","description":"wool rug","country":"PT","visible":true},
		{"id":"11","name":"Vase","description":"glass vase","country":"PT","visible":true}
	]}`)
	require.Equal(t, http.StatusMultiStatus, w.Code)

	var result domain.BulkResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, domain.BulkResult{
		Indexed: 1,
		Failed:  []domain.BulkItemError{{ID: "11", Reason: "mapper_parsing_exception: bad visible"}},
		Status:  domain.BulkStatusPartial,
	}, result)

	w, _ = do(t, router, http.MethodGet, "/products/10", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, router, http.MethodGet, "/products/11", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkIndex_Validation(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodPost, "/products/bulk", `{"products":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	w, resp = do(t, router, http.MethodPost, "/products/bulk",
		`{"products":[{"name":"Rug","description":"wool","country":"PT","visible":true}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Fields, "products[0].id")
}

// --- Suggestions & facets ---

func TestSuggest(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products/suggestions?name=lamp", "")
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	require.NoError(t, json.Unmarshal(resp.Data, &names))
	assert.ElementsMatch(t, []string{"Desk Lamp", "Floor Lamp", "Hidden Lamp"}, names)

	w, _ = do(t, router, http.MethodGet, "/products/suggestions?name=lamp&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSuggest_LimitCountsDistinctNames(t *testing.T) {
	eng := memory.New()
	require.NoError(t, eng.BulkIndex(context.Background(), []domain.Product{
		{ID: "1", Name: "Lamp", Country: "ES", Visible: true},
		{ID: "2", Name: "Lamp", Country: "FR", Visible: true},
		{ID: "3", Name: "Lamp", Country: "DE", Visible: true},
		{ID: "4", Name: "Desk Lamp", Country: "ES", Visible: true},
	}))
	router := newRouterWithEngine(eng)

	w, resp := do(t, router, http.MethodGet, "/products/suggestions?name=lamp&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	require.NoError(t, json.Unmarshal(resp.Data, &names))
	assert.Equal(t, []string{"Lamp", "Desk Lamp"}, names)
}

func TestSuggest_BadRequest(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products/suggestions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)

	w, resp = do(t, router, http.MethodGet, "/products/suggestions?name=lamp&limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

func TestFacets(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products/facets/country", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "max-age=30")

	var countries []string
	require.NoError(t, json.Unmarshal(resp.Data, &countries))
	assert.Equal(t, []string{"ES", "DE", "FR"}, countries)

	w, resp = do(t, router, http.MethodGet, "/products/facets/category", "")
	require.Equal(t, http.StatusOK, w.Code)

	var categories []string
	require.NoError(t, json.Unmarshal(resp.Data, &categories))
	assert.Equal(t, []string{"lighting", "furniture"}, categories)
}

func TestVisibleCount(t *testing.T) {
	router := newTestRouter(t)

	w, resp := do(t, router, http.MethodGet, "/products/facets/visible/count", "")
	require.Equal(t, http.StatusOK, w.Code)

	var data map[string]int64
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, int64(3), data["count"])
}

// --- Infrastructure routes ---

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	w, _ := do(t, router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationIDEchoed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set(middleware.CorrelationHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(middleware.CorrelationHeader))
}
