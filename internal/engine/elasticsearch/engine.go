package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/unir/products-search/internal/domain"
	apperrors "github.com/unir/products-search/pkg/errors"
)

// Config holds the connection settings of the Elasticsearch client.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Insecure skips TLS certificate verification (self-signed dev clusters).
	Insecure bool
	// Transport overrides the HTTP transport; Insecure is ignored when set.
	Transport http.RoundTripper
}

// Engine is the Elasticsearch-backed ProductEngine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

type esHit struct {
	ID     string         `json:"_id"`
	Source domain.Product `json:"_source"`
}

type esTermsAggregation struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]esTermsAggregation `json:"aggregations"`
}

type esGetResponse struct {
	Found  bool           `json:"found"`
	Source domain.Product `json:"_source"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates the client and makes sure the products index exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}

	transport := cfg.Transport
	if transport == nil && cfg.Insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for self-signed clusters
		}
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    3,
		RetryOnStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: cfg.Index,
		logger:    logger,
	}

	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}

	return e, nil
}

// IndexName returns the index this engine reads and writes.
func (e *Engine) IndexName() string {
	return e.indexName
}

func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", slog.String("index", e.indexName))
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

func (e *Engine) Get(ctx context.Context, id string) (*domain.Product, error) {
	res, err := e.client.Get(e.indexName, id, e.client.Get.WithContext(ctx))
	if err != nil {
		return nil, transportError("get", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("product", id)
	}
	if res.IsError() {
		return nil, responseError("get", res)
	}

	var doc esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	if !doc.Found {
		return nil, apperrors.NotFound("product", id)
	}
	if doc.Source.ID == "" {
		doc.Source.ID = id
	}
	return &doc.Source, nil
}

// Index writes the full document under its id, creating or replacing it.
func (e *Engine) Index(ctx context.Context, product *domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal product: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(product.ID),
		e.client.Index.WithRefresh("wait_for"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return transportError("index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("index", res)
	}

	e.logger.DebugContext(ctx, "indexed product", slog.String("id", product.ID))
	return nil
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh("wait_for"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return transportError("delete", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return apperrors.NotFound("product", id)
	}
	if res.IsError() {
		return responseError("delete", res)
	}

	e.logger.DebugContext(ctx, "deleted product", slog.String("id", id))
	return nil
}

// BulkIndex writes products through the bulk NDJSON API. Per-item failures
// are collected into one error.
func (e *Engine) BulkIndex(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range products {
		action := map[string]any{
			"index": map[string]any{"_index": e.indexName, "_id": products[i].ID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(products[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("wait_for"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return transportError("bulk index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("bulk index", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	if bulkResp.Errors {
		bulkErr := &domain.BulkIndexError{}
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				bulkErr.Failed = append(bulkErr.Failed, domain.BulkItemError{
					ID:     item.Index.ID,
					Reason: item.Index.Error.Type + ": " + item.Index.Error.Reason,
				})
			}
		}
		e.logger.WarnContext(ctx, "bulk index partially failed",
			slog.Int("count", len(products)),
			slog.Int("failed", len(bulkErr.Failed)),
		)
		return bulkErr
	}

	e.logger.InfoContext(ctx, "bulk indexed products", slog.Int("count", len(products)))
	return nil
}

func (e *Engine) Search(ctx context.Context, q *domain.ProductQuery) (*domain.SearchResult, error) {
	resp, err := e.search(ctx, "search", buildSearchQuery(q))
	if err != nil {
		return nil, err
	}

	result := &domain.SearchResult{
		Products: make([]domain.Product, 0, len(resp.Hits.Hits)),
		Buckets:  []domain.Bucket{},
		Total:    resp.Hits.Total.Value,
	}
	for _, hit := range resp.Hits.Hits {
		p := hit.Source
		if p.ID == "" {
			p.ID = hit.ID
		}
		result.Products = append(result.Products, p)
	}

	if q.Aggregate {
		for _, b := range resp.Aggregations[domain.CountryAggregationName].Buckets {
			result.Buckets = append(result.Buckets, domain.Bucket{Key: b.Key, Count: b.DocCount})
		}
	}

	e.logger.DebugContext(ctx, "search executed",
		slog.Int64("total", result.Total),
		slog.Int("took_ms", resp.Took),
	)
	return result, nil
}

// search runs body against the index and decodes the response.
func (e *Engine) search(ctx context.Context, op string, body map[string]any) (*esSearchResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(op, res)
	}

	var resp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}
	return &resp, nil
}

// DeleteIndex drops the whole index. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete([]string{e.indexName}, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return transportError("delete index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

// transportError marks connection-level failures as a backend outage.
func transportError(op string, err error) error {
	wrapped := fmt.Errorf("elasticsearch %s: %w", op, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}
	return apperrors.Unavailable("search engine", wrapped)
}

// responseError turns an error response into an error carrying the
// Elasticsearch error type and reason. Overload statuses map to 503 and a
// rejected request (400) to invalid input, so neither reads as a broken
// backend to callers that classify errors.
func responseError(op string, res *esapi.Response) error {
	msg := "unexpected status " + res.Status()
	var errResp esErrorResponse
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		msg = errResp.Error.Type + ": " + errResp.Error.Reason
	}

	err := fmt.Errorf("elasticsearch %s: %s", op, msg)
	switch res.StatusCode {
	case http.StatusBadRequest:
		return apperrors.InvalidInput("search engine rejected the request: " + msg)
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.Unavailable("search engine", err)
	default:
		return err
	}
}
