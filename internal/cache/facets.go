package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/internal/engine"
)

// KeyPrefix namespaces every cached facet entry.
const KeyPrefix = "products:facets:"

const visibleCountKey = KeyPrefix + "visible_count"

var lookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "products_facet_cache_lookups_total",
		Help: "Facet cache lookups by result (hit, miss, error)",
	},
	[]string{"result"},
)

// Engine caches facet keys and the visible count in Redis in front of
// another ProductEngine. Writes drop every cached entry. Redis failures are
// logged and the call falls through to the wrapped engine.
type Engine struct {
	engine.ProductEngine
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func Wrap(next engine.ProductEngine, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		ProductEngine: next,
		client:        client,
		ttl:           ttl,
		logger:        logger,
	}
}

func facetKey(field domain.FacetField, size int) string {
	return fmt.Sprintf("%s%s:%d", KeyPrefix, field, size)
}

func (e *Engine) Facet(ctx context.Context, field domain.FacetField, size int) ([]string, error) {
	key := facetKey(field, size)

	if data, ok := e.get(ctx, key); ok {
		var keys []string
		if err := json.Unmarshal(data, &keys); err == nil {
			return keys, nil
		}
	}

	keys, err := e.ProductEngine.Facet(ctx, field, size)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(keys); err == nil {
		e.set(ctx, key, data)
	}
	return keys, nil
}

func (e *Engine) CountVisible(ctx context.Context) (int64, error) {
	if data, ok := e.get(ctx, visibleCountKey); ok {
		if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return n, nil
		}
	}

	n, err := e.ProductEngine.CountVisible(ctx)
	if err != nil {
		return 0, err
	}

	e.set(ctx, visibleCountKey, []byte(strconv.FormatInt(n, 10)))
	return n, nil
}

func (e *Engine) Index(ctx context.Context, product *domain.Product) error {
	err := e.ProductEngine.Index(ctx, product)
	e.Invalidate(ctx)
	return err
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	err := e.ProductEngine.Delete(ctx, id)
	e.Invalidate(ctx)
	return err
}

func (e *Engine) BulkIndex(ctx context.Context, products []domain.Product) error {
	err := e.ProductEngine.BulkIndex(ctx, products)
	e.Invalidate(ctx)
	return err
}

// Invalidate deletes every key under KeyPrefix.
func (e *Engine) Invalidate(ctx context.Context) {
	var keys []string
	iter := e.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		e.logger.WarnContext(ctx, "facet cache scan failed", slog.String("error", err.Error()))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := e.client.Del(ctx, keys...).Err(); err != nil {
		e.logger.WarnContext(ctx, "facet cache invalidation failed",
			slog.Int("keys", len(keys)),
			slog.String("error", err.Error()),
		)
	}
}

// Ping checks the Redis connection.
func (e *Engine) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

func (e *Engine) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := e.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		lookups.WithLabelValues("hit").Inc()
		return data, true
	case errors.Is(err, redis.Nil):
		lookups.WithLabelValues("miss").Inc()
	default:
		lookups.WithLabelValues("error").Inc()
		e.logger.WarnContext(ctx, "facet cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return nil, false
}

func (e *Engine) set(ctx context.Context, key string, data []byte) {
	if err := e.client.Set(ctx, key, data, e.ttl).Err(); err != nil {
		e.logger.WarnContext(ctx, "facet cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
