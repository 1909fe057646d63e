// Command seed fills the products index with deterministic demo products.
//
//	SEARCH_ENGINE=elasticsearch go run ./cmd/seed -n 10000
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unir/products-search/internal/config"
	esengine "github.com/unir/products-search/internal/engine/elasticsearch"
	"github.com/unir/products-search/internal/seed"
	"github.com/unir/products-search/pkg/logger"
)

func main() {
	n := flag.Int("n", 10000, "number of products to generate")
	batch := flag.Int("batch", seed.DefaultBatchSize, "products per bulk request")
	randSeed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("products-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := esengine.New(ctx, esengine.Config{
		Addresses: cfg.ElasticsearchURLs,
		Username:  cfg.ElasticsearchUsername,
		Password:  cfg.ElasticsearchPassword,
		Index:     cfg.ElasticsearchIndex,
		Insecure:  cfg.ElasticsearchInsecure,
	}, log)
	if err != nil {
		log.Error("failed to connect to elasticsearch", slog.String("error", err.Error()))
		os.Exit(1)
	}

	indexed, err := seed.Load(ctx, eng, seed.Generate(*n, *randSeed), *batch, log)
	if err != nil {
		log.Error("seed failed", slog.Int("indexed", indexed), slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("seed complete", slog.Int("indexed", indexed), slog.String("index", eng.IndexName()))
}
