package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/unir/products-search/internal/domain"
	apperrors "github.com/unir/products-search/pkg/errors"
	"github.com/unir/products-search/pkg/pagination"
)

// Engine is an in-memory ProductEngine for local runs and tests. Text
// matching approximates the Elasticsearch queries: name matches on any
// shared token, description additionally treats the last query token as a
// prefix.
type Engine struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func New() *Engine {
	return &Engine{products: make(map[string]domain.Product)}
}

func (e *Engine) Get(_ context.Context, id string) (*domain.Product, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (e *Engine) Index(_ context.Context, product *domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.products[product.ID] = *product
	return nil
}

func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.products[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	delete(e.products, id)
	return nil
}

func (e *Engine) BulkIndex(_ context.Context, products []domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range products {
		e.products[products[i].ID] = products[i]
	}
	return nil
}

type scored struct {
	product domain.Product
	score   int
}

func (e *Engine) Search(_ context.Context, q *domain.ProductQuery) (*domain.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nameTokens := tokenize(q.Name)
	descTokens := tokenize(q.Description)
	filtered := q.HasFilters()

	// A text filter without any searchable token matches nothing.
	unmatchable := (q.Name != "" && len(nameTokens) == 0) ||
		(q.Description != "" && len(descTokens) == 0)

	var matched []scored
	for _, p := range e.products {
		if unmatchable {
			break
		}
		if !p.Visible {
			continue
		}
		score := 0
		if filtered {
			var ok bool
			if score, ok = filterScore(&p, q, nameTokens, descTokens); !ok {
				continue
			}
		}
		matched = append(matched, scored{product: p, score: score})
	}

	total := int64(len(matched))

	if q.Aggregate {
		counts := make(map[string]int64)
		for _, m := range matched {
			counts[m.product.Country]++
		}
		return &domain.SearchResult{
			Products: []domain.Product{},
			Buckets:  topBuckets(counts, domain.CountryAggregationSize),
			Total:    total,
		}, nil
	}

	sortScored(matched)

	page := pagination.New(q.Page, q.PerPage)
	offset := min(page.Offset, len(matched))
	end := offset + min(page.PerPage, len(matched)-offset)

	products := make([]domain.Product, 0, end-offset)
	for _, m := range matched[offset:end] {
		products = append(products, m.product)
	}

	return &domain.SearchResult{Products: products, Buckets: []domain.Bucket{}, Total: total}, nil
}

// filterScore applies the query filters to p and returns its relevance.
func filterScore(p *domain.Product, q *domain.ProductQuery, nameTokens, descTokens []string) (int, bool) {
	if q.Country != "" && p.Country != q.Country {
		return 0, false
	}
	score := 0
	if len(nameTokens) > 0 {
		n := matchTokens(nameTokens, tokenize(p.Name))
		if n == 0 {
			return 0, false
		}
		score += n
	}
	if len(descTokens) > 0 {
		n := matchPrefix(descTokens, tokenize(p.Description))
		if n == 0 {
			return 0, false
		}
		score += n
	}
	return score, true
}

// Suggest returns up to limit distinct matching names, best match first.
func (e *Engine) Suggest(_ context.Context, name string, limit int) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens := tokenize(name)
	if len(tokens) == 0 {
		return []string{}, nil
	}

	var matched []scored
	for _, p := range e.products {
		if n := matchTokens(tokens, tokenize(p.Name)); n > 0 {
			matched = append(matched, scored{product: p, score: n})
		}
	}
	sortScored(matched)

	seen := make(map[string]struct{}, len(matched))
	names := make([]string, 0, len(matched))
	for _, m := range matched {
		if limit > 0 && len(names) == limit {
			break
		}
		if _, ok := seen[m.product.Name]; ok {
			continue
		}
		seen[m.product.Name] = struct{}{}
		names = append(names, m.product.Name)
	}
	return names, nil
}

func (e *Engine) Facet(_ context.Context, field domain.FacetField, size int) ([]string, error) {
	if !field.Valid() {
		return nil, apperrors.InvalidInput("unknown facet field: " + string(field))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int64)
	for _, p := range e.products {
		v := p.Country
		if field == domain.FacetCategory {
			v = p.Category
		}
		if v != "" {
			counts[v]++
		}
	}

	buckets := topBuckets(counts, size)
	keys := make([]string, 0, len(buckets))
	for _, b := range buckets {
		keys = append(keys, b.Key)
	}
	return keys, nil
}

func (e *Engine) CountVisible(_ context.Context) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var n int64
	for _, p := range e.products {
		if p.Visible {
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (e *Engine) Ping(context.Context) error { return nil }

// topBuckets orders buckets like a terms aggregation: doc count descending,
// then key ascending.
func topBuckets(counts map[string]int64, size int) []domain.Bucket {
	buckets := make([]domain.Bucket, 0, len(counts))
	for k, c := range counts {
		buckets = append(buckets, domain.Bucket{Key: k, Count: c})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})
	if size > 0 && len(buckets) > size {
		buckets = buckets[:size]
	}
	return buckets
}

func sortScored(s []scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].score != s[j].score {
			return s[i].score > s[j].score
		}
		return s[i].product.ID < s[j].product.ID
	})
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchTokens counts query tokens present in doc.
func matchTokens(query, doc []string) int {
	set := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range query {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

// matchPrefix is matchTokens with the last query token also matching as a
// prefix of any doc token.
func matchPrefix(query, doc []string) int {
	n := matchTokens(query[:len(query)-1], doc)
	last := query[len(query)-1]
	for _, t := range doc {
		if strings.HasPrefix(t, last) {
			return n + 1
		}
	}
	return n
}
