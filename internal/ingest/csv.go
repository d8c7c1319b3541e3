package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
)

// Columns of a coupon definition file. Only code, discount_type,
// discount_value, valid_from and valid_to are required.
const (
	colCode              = "code"
	colDescription       = "description"
	colDiscountType      = "discount_type"
	colDiscountValue     = "discount_value"
	colMinOrderAmount    = "min_order_amount"
	colMaxDiscountAmount = "max_discount_amount"
	colValidFrom         = "valid_from"
	colValidTo           = "valid_to"
	colUsageLimit        = "usage_limit"
	colUsageLimitPerUser = "usage_limit_per_user"
	colIsActive          = "is_active"
)

var requiredColumns = []string{colCode, colDiscountType, colDiscountValue, colValidFrom, colValidTo}

// RowError is a definition row that could not be imported.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// rowFunc receives each data row. Exactly one of c and rowErr is set.
type rowFunc func(line int, c *coupon.Coupon, rowErr error) error

// scanFile streams the definitions in path, which is gzip-compressed when
// it ends in ".gz".
func scanFile(ctx context.Context, path string, fn rowFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	if err := scanCSV(ctx, r, fn); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func scanCSV(ctx context.Context, r io.Reader, fn rowFunc) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return errors.Errorf("missing column %q", name)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if err := fn(parseErr.Line, nil, parseErr.Err); err != nil {
					return err
				}
				continue
			}
			return errors.Wrap(err, "read row")
		}

		line, _ := cr.FieldPos(0)
		c, rowErr := parseRow(cols, rec)
		if rowErr != nil {
			c = nil
		}
		if err := fn(line, c, rowErr); err != nil {
			return err
		}
	}
}

func parseRow(cols map[string]int, rec []string) (*coupon.Coupon, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := &coupon.Coupon{
		Code:         coupon.NormalizeCode(field(colCode)),
		Description:  field(colDescription),
		DiscountType: coupon.DiscountType(strings.ToLower(field(colDiscountType))),
		IsActive:     true,
	}

	var err error
	if c.DiscountValue, err = decimal.NewFromString(field(colDiscountValue)); err != nil {
		return nil, errors.Wrap(err, colDiscountValue)
	}
	if c.MinOrderAmount, err = optDecimal(field(colMinOrderAmount)); err != nil {
		return nil, errors.Wrap(err, colMinOrderAmount)
	}
	if c.MaxDiscountAmount, err = optDecimal(field(colMaxDiscountAmount)); err != nil {
		return nil, errors.Wrap(err, colMaxDiscountAmount)
	}
	if c.ValidFrom, err = time.Parse(time.RFC3339, field(colValidFrom)); err != nil {
		return nil, errors.Wrap(err, colValidFrom)
	}
	if c.ValidTo, err = time.Parse(time.RFC3339, field(colValidTo)); err != nil {
		return nil, errors.Wrap(err, colValidTo)
	}
	if c.UsageLimit, err = optInt(field(colUsageLimit)); err != nil {
		return nil, errors.Wrap(err, colUsageLimit)
	}
	if c.UsageLimitPerUser, err = optInt(field(colUsageLimitPerUser)); err != nil {
		return nil, errors.Wrap(err, colUsageLimitPerUser)
	}
	if v := field(colIsActive); v != "" {
		if c.IsActive, err = strconv.ParseBool(v); err != nil {
			return nil, errors.Wrap(err, colIsActive)
		}
	}

	if err := c.CheckInvariants(); err != nil {
		return nil, err
	}
	return c, nil
}

func optDecimal(v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, errors.Errorf("negative amount %s", d)
	}
	return &d, nil
}

func optInt(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Errorf("negative limit %d", n)
	}
	return &n, nil
}
