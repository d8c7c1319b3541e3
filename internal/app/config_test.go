package app

import (
	"testing"

	"github.com/cristalhq/aconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoaderConfig() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "CHECKOUT",
		SkipFiles: true,
		SkipFlags: true,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CHECKOUT_DATABASE_URL", "postgres://localhost/checkout")
	t.Setenv("PORT", "")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, 100, cfg.RateLimit.Max)

	p, err := cfg.Pricing.Policy()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.18").Equal(p.Tax.Rate))
	assert.True(t, decimal.NewFromInt(50).Equal(p.Shipping.FlatRate))
	assert.True(t, decimal.NewFromInt(999).Equal(p.Shipping.FreeThreshold))
}

func TestLoadConfig_PricingFromEnv(t *testing.T) {
	t.Setenv("CHECKOUT_DATABASE_URL", "postgres://localhost/checkout")
	t.Setenv("CHECKOUT_PRICING_TAX_RATE", "0.2")
	t.Setenv("CHECKOUT_PRICING_FREE_SHIPPING_THRESHOLD", "500")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	p, err := cfg.Pricing.Policy()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.2").Equal(p.Tax.Rate))
	assert.True(t, decimal.NewFromInt(500).Equal(p.Shipping.FreeThreshold))
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("CHECKOUT_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("CHECKOUT_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")

	_, err := loadConfig(testLoaderConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestPricingConfig_Policy(t *testing.T) {
	for _, tt := range []struct {
		name    string
		cfg     PricingConfig
		wantErr string
	}{
		{name: "Valid", cfg: PricingConfig{TaxRate: "0.18", FlatShippingFee: "50", FreeShippingThreshold: "999"}},
		{name: "ZeroShipping", cfg: PricingConfig{TaxRate: "0", FlatShippingFee: "0", FreeShippingThreshold: "0"}},
		{name: "Malformed", cfg: PricingConfig{TaxRate: "abc", FlatShippingFee: "50", FreeShippingThreshold: "999"}, wantErr: "parse tax rate"},
		{name: "NegativeFee", cfg: PricingConfig{TaxRate: "0.18", FlatShippingFee: "-1", FreeShippingThreshold: "999"}, wantErr: "is negative"},
		{name: "RateAboveOne", cfg: PricingConfig{TaxRate: "1.5", FlatShippingFee: "50", FreeShippingThreshold: "999"}, wantErr: "above 1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Policy()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
