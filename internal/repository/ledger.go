package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
)

const (
	// The WHERE clause is the transactional re-check: under concurrent
	// updates Postgres re-evaluates it against the latest row version, so
	// the cap can never be overshot.
	claimCouponUseSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING used_count, usage_limit_per_user`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ coupon.Ledger = (*CouponLedger)(nil)

// CouponLedger implements coupon.Ledger backed by PostgreSQL.
type CouponLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewCouponLedger returns a CouponLedger that uses the given pool.
func NewCouponLedger(pool *pgxpool.Pool) *CouponLedger {
	return &CouponLedger{pool: pool, now: time.Now}
}

// Redeem commits a single redemption in its own transaction.
func (l *CouponLedger) Redeem(ctx context.Context, r coupon.Redemption) (*coupon.RedemptionResult, error) {
	var res *coupon.RedemptionResult
	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		var err error
		res, err = redeemTx(ctx, tx, r, l.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// redeemTx claims one use of the coupon, re-checks the per-user cap and
// appends the usage record, all inside tx. The row lock taken by the UPDATE
// serializes concurrent redemptions of the same coupon, so the per-user
// count that follows sees every committed competitor.
func redeemTx(ctx context.Context, tx pgx.Tx, r coupon.Redemption, now time.Time) (*coupon.RedemptionResult, error) {
	var (
		usedCount    int32
		perUserLimit *int32
	)
	err := tx.QueryRow(ctx, claimCouponUseSQL, r.CouponID).Scan(&usedCount, &perUserLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrConcurrentLimitExceeded
		}
		return nil, fmt.Errorf("claiming use of coupon %q: %w", r.CouponID, err)
	}

	if perUserLimit != nil {
		var prior int32
		if err := tx.QueryRow(ctx, countUserUsagesSQL, r.CouponID, r.UserID).Scan(&prior); err != nil {
			return nil, fmt.Errorf("counting usages of coupon %q: %w", r.CouponID, err)
		}
		if prior >= *perUserLimit {
			return nil, coupon.ErrConcurrentLimitExceeded
		}
	}

	recordID := uuid.New().String()
	if _, err := tx.Exec(ctx, insertCouponUsageSQL,
		recordID, r.CouponID, r.UserID, r.OrderID, r.DiscountAmount, now,
	); err != nil {
		return nil, fmt.Errorf("recording usage of coupon %q: %w", r.CouponID, err)
	}

	return &coupon.RedemptionResult{
		RecordID:  recordID,
		CouponID:  r.CouponID,
		UsedCount: int(usedCount),
		UsedAt:    now,
	}, nil
}
