package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/electro-checkout/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Pricing     PricingConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PricingConfig is the store tax and shipping policy. Amounts are decimal
// strings so no precision is lost on the way in.
type PricingConfig struct {
	TaxRate               string `default:"0.18" usage:"Tax rate applied to the discounted subtotal" flag:"tax-rate"`
	FlatShippingFee       string `default:"50"   usage:"Shipping fee below the free-shipping threshold" flag:"flat-shipping-fee"`
	FreeShippingThreshold string `default:"999"  usage:"Discounted subtotal from which shipping is free" flag:"free-shipping-threshold"`
}

// Policy parses the configured amounts.
func (c PricingConfig) Policy() (pricing.Policy, error) {
	rate, err := parseAmount("tax rate", c.TaxRate)
	if err != nil {
		return pricing.Policy{}, err
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return pricing.Policy{}, errors.Errorf("tax rate %s is above 1", rate)
	}
	flat, err := parseAmount("flat shipping fee", c.FlatShippingFee)
	if err != nil {
		return pricing.Policy{}, err
	}
	threshold, err := parseAmount("free shipping threshold", c.FreeShippingThreshold)
	if err != nil {
		return pricing.Policy{}, err
	}
	return pricing.Policy{
		Tax:      pricing.TaxPolicy{Rate: rate},
		Shipping: pricing.ShippingPolicy{FlatRate: flat, FreeThreshold: threshold},
	}, nil
}

func parseAmount(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s %q", name, v)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s %s is negative", name, d)
	}
	return d, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from flags, environment variables and YAML
// config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Pricing.Policy(); err != nil {
		return nil, errors.Wrap(err, "pricing")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables that hosting
// platforms inject onto the CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
