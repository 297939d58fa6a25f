// Package config holds the environment-driven configuration of the search
// service.
package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/marketloom/search-service/pkg/config"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_HTTP_PORT" envDefault:"8010"`

	// Backend selection (elasticsearch or memory)
	Engine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"marketloom_search"`

	// Redis, backing the response cache and the rate limiter. Empty means
	// in-process stores (single-replica development only).
	RedisAddr     string `env:"REDIS_ADDR" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID  string   `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	KafkaDisabled bool     `env:"KAFKA_DISABLED" envDefault:"false"`

	// Catalog service, for full reindex
	CatalogServiceURL string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8080"`

	// Search behavior
	DefaultLimit          int           `env:"SEARCH_DEFAULT_LIMIT" envDefault:"20"`
	MaxLimit              int           `env:"SEARCH_MAX_LIMIT" envDefault:"100"`
	MaxConcurrentSearches int           `env:"SEARCH_MAX_CONCURRENT" envDefault:"32"`
	CacheTTL              time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"60s"`
	RetryBaseDelay        time.Duration `env:"SEARCH_RETRY_BASE_DELAY" envDefault:"200ms"`

	// Per-class rate limits, requests per minute. Zero disables the class.
	RateLimitSearch  int `env:"RATE_LIMIT_SEARCH" envDefault:"60"`
	RateLimitSuggest int `env:"RATE_LIMIT_SUGGEST" envDefault:"120"`
	RateLimitTrack   int `env:"RATE_LIMIT_TRACK" envDefault:"120"`
	RateLimitAdmin   int `env:"RATE_LIMIT_ADMIN" envDefault:"30"`

	// Analytics
	AnalyticsBufferSize int `env:"ANALYTICS_BUFFER_SIZE" envDefault:"256"`

	// Tracing
	TracingEnabled bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint   string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampling  float64 `env:"TRACE_SAMPLING" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
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
	if c.Engine != "elasticsearch" && c.Engine != "memory" {
		return fmt.Errorf("unknown search engine %q", c.Engine)
	}
	if c.DefaultLimit < 1 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("invalid limit bounds: default %d, max %d", c.DefaultLimit, c.MaxLimit)
	}
	if c.MaxConcurrentSearches < 1 {
		return fmt.Errorf("invalid max concurrent searches: %d", c.MaxConcurrentSearches)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("invalid cache TTL: %s", c.CacheTTL)
	}
	return nil
}

// IsProduction reports whether the service runs in the production
// environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
