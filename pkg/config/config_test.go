package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port        int             `env:"TEST_CFG_PORT" envDefault:"8080"`
	LogLevel    string          `env:"TEST_CFG_LOG_LEVEL" envDefault:"info"`
	Timeout     time.Duration   `env:"TEST_CFG_TIMEOUT" envDefault:"15s"`
	TaxRate     decimal.Decimal `env:"TEST_CFG_TAX_RATE" envDefault:"0.18"`
	ShippingFee decimal.Decimal `env:"TEST_CFG_SHIPPING_FEE" envDefault:"15"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.True(t, decimal.RequireFromString("0.18").Equal(cfg.TaxRate))
	assert.True(t, decimal.NewFromInt(15).Equal(cfg.ShippingFee))
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_LOG_LEVEL", "debug")
	t.Setenv("TEST_CFG_TIMEOUT", "250ms")
	t.Setenv("TEST_CFG_TAX_RATE", "0.2")

	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "0.2", cfg.TaxRate.String())
}

func TestLoad_InvalidDecimal(t *testing.T) {
	t.Setenv("TEST_CFG_SHIPPING_FEE", "fifteen")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_JWT_SECRET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
