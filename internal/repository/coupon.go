package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, discount_type, discount_value,
		min_order_amount, max_discount_amount, valid_from, valid_to,
		usage_limit, used_count, usage_limit_per_user, is_active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE UPPER(code) = UPPER($1) AND is_active = TRUE AND deleted_at IS NULL`

	countUserUsagesSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_value,
		min_order_amount, max_discount_amount, valid_from, valid_to,
		usage_limit, usage_limit_per_user, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a live coupon by its code (case-insensitive).
// Returns coupon.ErrCouponNotFound when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUserUsages returns the number of recorded redemptions of the coupon
// by the user.
func (r *CouponRepository) CountUserUsages(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserUsagesSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usages of coupon %q: %w", couponID, err)
	}
	return n, nil
}

// Upsert inserts or replaces a coupon definition keyed by its code. The
// used count of an existing coupon is left untouched. It returns the
// coupon ID.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, upsertCouponSQL,
		coupon.NormalizeCode(c.Code), c.Description, string(c.DiscountType), c.DiscountValue,
		nullDecimal(c.MinOrderAmount), nullDecimal(c.MaxDiscountAmount), c.ValidFrom, c.ValidTo,
		c.UsageLimit, c.UsageLimitPerUser, c.IsActive,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return id, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                 coupon.Coupon
		discountType      string
		minOrderAmount    decimal.NullDecimal
		maxDiscountAmount decimal.NullDecimal
		validFrom         time.Time
		validTo           time.Time
		usageLimit        *int32
		usedCount         int32
		usageLimitPerUser *int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.DiscountValue,
		&minOrderAmount, &maxDiscountAmount, &validFrom, &validTo,
		&usageLimit, &usedCount, &usageLimitPerUser, &c.IsActive,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.MinOrderAmount = decimalPtr(minOrderAmount)
	c.MaxDiscountAmount = decimalPtr(maxDiscountAmount)
	c.ValidFrom = validFrom
	c.ValidTo = validTo
	c.UsageLimit = intPtr(usageLimit)
	c.UsedCount = int(usedCount)
	c.UsageLimitPerUser = intPtr(usageLimitPerUser)
	return c, err
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	return &v.Decimal
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}
