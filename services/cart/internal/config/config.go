package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/tracing"
)

// Catalog backends.
const (
	CatalogHTTP     = "http"
	CatalogPostgres = "postgres"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	// Bearer tokens are HS256 JWTs signed with this secret.
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`

	Redis database.RedisConfig

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Limits
	MaxQuantityPerLine int    `env:"MAX_QUANTITY_PER_LINE" envDefault:"99"`
	MaxLinesPerCart    int    `env:"MAX_LINES_PER_CART" envDefault:"50"`
	Currency           string `env:"CART_CURRENCY" envDefault:"USD"`

	// Catalog
	CatalogBackend     string `env:"CATALOG_BACKEND" envDefault:"postgres"`
	CatalogServiceURL  string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001"`
	CatalogTimeoutSecs int    `env:"CATALOG_TIMEOUT_SECONDS" envDefault:"5"`
	Postgres           database.PostgresConfig

	// Circuit breaker for the HTTP catalog
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	Tracing tracing.Config

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	cfg.Tracing.ServiceName = "cart"
	cfg.Tracing.Environment = cfg.Environment
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CartTTLDuration returns the cart expiry as a duration.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if c.MaxQuantityPerLine < 1 {
		return fmt.Errorf("MAX_QUANTITY_PER_LINE must be positive, got %d", c.MaxQuantityPerLine)
	}
	if c.MaxLinesPerCart < 1 {
		return fmt.Errorf("MAX_LINES_PER_CART must be positive, got %d", c.MaxLinesPerCart)
	}
	switch c.CatalogBackend {
	case CatalogHTTP:
		if c.CatalogServiceURL == "" {
			return fmt.Errorf("CATALOG_SERVICE_URL is required for the http catalog")
		}
	case CatalogPostgres:
	default:
		return fmt.Errorf("CATALOG_BACKEND must be %q or %q, got %q", CatalogHTTP, CatalogPostgres, c.CatalogBackend)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	return nil
}
