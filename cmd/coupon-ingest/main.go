// Command coupon-ingest imports coupon definitions from CSV files
// (optionally gzip-compressed) into PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/electro-checkout/internal/ingest"
	"github.com/xenking/electro-checkout/internal/repository"
)

func main() {
	var (
		pattern     string
		databaseURL string
		writers     int
		expected    uint
		strict      bool
	)
	flag.StringVar(&pattern, "files", "data/coupons*.csv.gz", "glob of coupon definition files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&writers, "writers", 4, "concurrent database writers")
	flag.UintVar(&expected, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.BoolVar(&strict, "strict", false, "exit non-zero when rows were skipped")
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

	rep, err := run(ctx, lg, pattern, databaseURL, ingest.Options{ExpectedCodes: expected, Writers: writers})
	if err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}

	lg.Info("Coupon ingest completed",
		zap.Int("files", rep.Files),
		zap.Int("rows", rep.Rows),
		zap.Int("imported", rep.Imported),
		zap.Int("invalid", len(rep.Invalid)),
		zap.Strings("duplicates", rep.Duplicates),
	)
	if strict && (len(rep.Invalid) > 0 || len(rep.Duplicates) > 0) {
		lg.Fatal("Rows were skipped")
	}
}

func run(ctx context.Context, lg *zap.Logger, pattern, databaseURL string, opts ingest.Options) (*ingest.Report, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %q", pattern)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no files match %q", pattern)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	lg.Info("Importing coupons", zap.Strings("files", files))
	return ingest.NewImporter(repository.NewCouponRepository(pool), lg, opts).Run(ctx, files)
}
