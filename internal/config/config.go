package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/unir/products-search/pkg/config"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the products service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PRODUCTS_HTTP_PORT" envDefault:"8088"`
	// ServerFullAddress is the public base URL used in aggregation links.
	ServerFullAddress string `env:"SERVER_FULL_ADDRESS" envDefault:"http://localhost:8088"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURLs     []string `env:"ELASTICSEARCH_URLS" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchIndex    string   `env:"ELASTICSEARCH_INDEX" envDefault:"products"`
	ElasticsearchUsername string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchInsecure bool     `env:"ELASTICSEARCH_INSECURE" envDefault:"false"`

	// Circuit breaker around the search engine
	BreakerMaxRequests  uint32        `env:"BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerInterval     time.Duration `env:"BREAKER_INTERVAL" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Facet cache
	CacheEnabled  bool          `env:"CACHE_ENABLED" envDefault:"false"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load products config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			return fmt.Errorf("ELASTICSEARCH_URLS is required when SEARCH_ENGINE=%s", EngineElasticsearch)
		}
	case EngineMemory:
	default:
		return fmt.Errorf("invalid SEARCH_ENGINE %q: must be %s or %s", c.SearchEngine, EngineElasticsearch, EngineMemory)
	}
	if c.ServerFullAddress == "" {
		return fmt.Errorf("SERVER_FULL_ADDRESS is required")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0.0, 1.0], got %v", c.BreakerFailureRatio)
	}
	if c.CacheEnabled {
		if c.RedisPort < 1 || c.RedisPort > 65535 {
			return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
		}
		if c.CacheTTL <= 0 {
			return fmt.Errorf("CACHE_TTL must be positive when the cache is enabled")
		}
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}
