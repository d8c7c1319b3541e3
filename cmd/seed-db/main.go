// Command seed-db loads the product catalog and a set of demo coupons into
// PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/product"
	"github.com/xenking/electro-checkout/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Brand    string          `json:"brand"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		skipCoupons  bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.BoolVar(&skipCoupons, "skip-coupons", false, "do not seed demo coupons")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, skipCoupons); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, skipCoupons bool) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if skipCoupons {
		return nil
	}
	if err := seedCoupons(ctx, lg, repository.NewCouponRepository(pool), time.Now().UTC()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *repository.ProductRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		if p.ID == "" || p.Price.IsNegative() {
			return errors.Errorf("invalid product %q", p.ID)
		}
		if err := repo.Upsert(ctx, product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Brand:    p.Brand,
			Category: p.Category,
			Price:    p.Price,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Seeded products", zap.Int("count", len(products)), zap.String("path", path))
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *repository.CouponRepository, now time.Time) error {
	ptr := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}
	limit := func(n int) *int { return &n }

	coupons := []coupon.Coupon{
		{
			Code:              "WELCOME10",
			Description:       "10% off your first order, up to 100",
			DiscountType:      coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(10),
			MaxDiscountAmount: ptr("100"),
			UsageLimitPerUser: limit(1),
		},
		{
			Code:           "FLAT50",
			Description:    "50 off orders of 500 or more",
			DiscountType:   coupon.DiscountFixed,
			DiscountValue:  decimal.NewFromInt(50),
			MinOrderAmount: ptr("500"),
		},
		{
			Code:          "LAUNCH100",
			Description:   "20% off for the first 100 orders",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(20),
			UsageLimit:    limit(100),
		},
	}

	for i := range coupons {
		c := &coupons[i]
		c.ValidFrom = now.AddDate(0, 0, -1)
		c.ValidTo = now.AddDate(0, 3, 0)
		c.IsActive = true
		if err := c.CheckInvariants(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		if _, err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}
	lg.Info("Seeded coupons", zap.Int("count", len(coupons)))
	return nil
}
