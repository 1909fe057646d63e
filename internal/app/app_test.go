package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unir/products-search/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SEARCH_ENGINE", config.EngineMemory)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_MemoryEngine(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.closeAll() })

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/products", "application/json",
		strings.NewReader(`{"name":"Lamp","description":"led","country":"ES","visible":true}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	res, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestNewApp_WithFacetCache(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")

	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("REDIS_HOST", host)
	t.Setenv("REDIS_PORT", port)
	cfg := testConfig(t)

	a, err := NewApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.closeAll() })

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/products/facets/visible/count")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, mr.Exists("products:facets:visible_count"))
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("REDIS_HOST", "127.0.0.1")
	t.Setenv("REDIS_PORT", "1")
	cfg := testConfig(t)

	_, err := NewApp(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init facet cache")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Setenv("PRODUCTS_HTTP_PORT", "18088")
	a, err := NewApp(context.Background(), testConfig(t), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, a.Run(ctx))
}
