package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/tracing"
)

// Snapshot stores.
const (
	SnapshotRedis  = "redis"
	SnapshotMemory = "memory"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Cart service
	CartServiceURL     string `env:"CART_SERVICE_URL" envDefault:"http://localhost:8003"`
	CartRequestTimeout int    `env:"CART_REQUEST_TIMEOUT_SECONDS" envDefault:"15"`
	CartMaxRetries     int    `env:"CART_MAX_RETRIES" envDefault:"2"`

	// Circuit breaker for the cart service
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Pricing
	TaxRate     decimal.Decimal `env:"TAX_RATE" envDefault:"0.18"`
	ShippingFee decimal.Decimal `env:"SHIPPING_FEE" envDefault:"15"`

	// Cart state
	MaxQuantity         int `env:"CART_MAX_QUANTITY" envDefault:"99"`
	ErrorDismissSeconds int `env:"CART_ERROR_DISMISS_SECONDS" envDefault:"5"`

	// Sessions
	SessionIdleTTLMins int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`

	// Local cart snapshots
	SnapshotStore   string `env:"SNAPSHOT_STORE" envDefault:"redis"`
	SnapshotTTLDays int    `env:"SNAPSHOT_TTL_DAYS" envDefault:"7"`
	Redis           database.RedisConfig

	// Per-session rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	Tracing tracing.Config

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	cfg.Tracing.ServiceName = "storefront"
	cfg.Tracing.Environment = cfg.Environment
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequestTimeout bounds one round trip to the cart service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.CartRequestTimeout) * time.Second
}

// ErrorDismissDelay is how long a cart error stays visible.
func (c *Config) ErrorDismissDelay() time.Duration {
	return time.Duration(c.ErrorDismissSeconds) * time.Second
}

// SessionIdleTTL is how long an unused session keeps its state machine.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMins) * time.Minute
}

// SnapshotTTL is how long a persisted cart snapshot survives.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLDays) * 24 * time.Hour
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.CartServiceURL == "" {
		return fmt.Errorf("CART_SERVICE_URL is required")
	}
	if c.CartRequestTimeout < 1 {
		return fmt.Errorf("CART_REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.CartRequestTimeout)
	}
	if c.CartMaxRetries < 0 {
		return fmt.Errorf("CART_MAX_RETRIES must not be negative, got %d", c.CartMaxRetries)
	}
	if c.TaxRate.IsNegative() {
		return fmt.Errorf("TAX_RATE must not be negative, got %s", c.TaxRate)
	}
	if c.ShippingFee.IsNegative() {
		return fmt.Errorf("SHIPPING_FEE must not be negative, got %s", c.ShippingFee)
	}
	if c.MaxQuantity < 0 {
		return fmt.Errorf("CART_MAX_QUANTITY must not be negative, got %d", c.MaxQuantity)
	}
	if c.ErrorDismissSeconds < 1 {
		return fmt.Errorf("CART_ERROR_DISMISS_SECONDS must be positive, got %d", c.ErrorDismissSeconds)
	}
	if c.SessionIdleTTLMins < 1 {
		return fmt.Errorf("SESSION_IDLE_TTL_MINUTES must be positive, got %d", c.SessionIdleTTLMins)
	}
	switch c.SnapshotStore {
	case SnapshotRedis, SnapshotMemory:
	default:
		return fmt.Errorf("SNAPSHOT_STORE must be %q or %q, got %q", SnapshotRedis, SnapshotMemory, c.SnapshotStore)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive, got rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	return nil
}
