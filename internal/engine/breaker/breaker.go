package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"github.com/unir/products-search/internal/domain"
	"github.com/unir/products-search/internal/engine"
	apperrors "github.com/unir/products-search/pkg/errors"
)

// Config holds circuit breaker settings.
type Config struct {
	// Name identifies the breaker in metrics and logs.
	Name string
	// MaxRequests is how many calls are let through while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed; 0 never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// FailureRatio trips the breaker once at least MinRequests calls were seen.
	FailureRatio float64
	MinRequests  uint32
}

func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Engine guards a ProductEngine with a circuit breaker. Not-found,
// invalid-input and per-item bulk rejections count as successes; only
// backend faults trip it.
type Engine struct {
	next engine.ProductEngine
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// Wrap returns next behind a breaker configured by cfg.
func Wrap(next engine.ProductEngine, cfg Config, logger *slog.Logger) *Engine {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			var bulkErr *domain.BulkIndexError
			return err == nil ||
				apperrors.IsClientError(err) ||
				errors.Is(err, context.Canceled) ||
				errors.As(err, &bulkErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Engine{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
		name: cfg.Name,
	}
}

// State reports the current breaker state.
func (e *Engine) State() gobreaker.State {
	return e.cb.State()
}

func run[T any](e *Engine, fn func() (T, error)) (T, error) {
	v, err := e.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperrors.Unavailable("search engine", err)
		}
		return zero, err
	}
	return v.(T), nil
}

func (e *Engine) Get(ctx context.Context, id string) (*domain.Product, error) {
	return run(e, func() (*domain.Product, error) { return e.next.Get(ctx, id) })
}

func (e *Engine) Search(ctx context.Context, q *domain.ProductQuery) (*domain.SearchResult, error) {
	return run(e, func() (*domain.SearchResult, error) { return e.next.Search(ctx, q) })
}

func (e *Engine) Index(ctx context.Context, product *domain.Product) error {
	_, err := run(e, func() (struct{}, error) { return struct{}{}, e.next.Index(ctx, product) })
	return err
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	_, err := run(e, func() (struct{}, error) { return struct{}{}, e.next.Delete(ctx, id) })
	return err
}

func (e *Engine) BulkIndex(ctx context.Context, products []domain.Product) error {
	_, err := run(e, func() (struct{}, error) { return struct{}{}, e.next.BulkIndex(ctx, products) })
	return err
}

func (e *Engine) Suggest(ctx context.Context, name string, limit int) ([]string, error) {
	return run(e, func() ([]string, error) { return e.next.Suggest(ctx, name, limit) })
}

func (e *Engine) Facet(ctx context.Context, field domain.FacetField, size int) ([]string, error) {
	return run(e, func() ([]string, error) { return e.next.Facet(ctx, field, size) })
}

func (e *Engine) CountVisible(ctx context.Context) (int64, error) {
	return run(e, func() (int64, error) { return e.next.CountVisible(ctx) })
}
