package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/order"
)

const insertOrderSQL = `INSERT INTO orders (id, user_id, status, coupon_id, coupon_code,
		sub_total, tax_amount, shipping_amount, discount_amount, total_amount, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, now: time.Now}
}

// Create persists the order, its line items and, when r is non-nil, the
// coupon redemption in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, red *coupon.Redemption) (*coupon.RedemptionResult, error) {
	var res *coupon.RedemptionResult
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var couponID *string
		if o.CouponID != "" {
			couponID = &o.CouponID
		}

		t := o.Totals
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, string(o.Status), couponID, o.CouponCode,
			t.SubTotal, t.TaxAmount, t.ShippingAmount, t.DiscountAmount, t.TotalAmount, o.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		rows := make([][]any, len(o.Items))
		for i, li := range o.Items {
			rows[i] = []any{o.ID, i + 1, li.ProductID, li.Name, li.UnitPrice, li.Quantity, li.Total()}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "line_no", "product_id", "name", "unit_price", "quantity", "total_price"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("creating items of order %q: %w", o.ID, err)
		}

		if red == nil {
			return nil
		}
		var err error
		res, err = redeemTx(ctx, tx, *red, r.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
