package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes DiscountValue percent off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrCouponNotFound is returned when no live coupon matches the code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrInvalidCoupon is returned when a coupon definition cannot produce a
	// discount (non-positive value, unknown type, broken invariants).
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrConcurrentLimitExceeded is returned by a Ledger when the usage cap
	// was reached between validation and redemption.
	ErrConcurrentLimitExceeded = errors.New("coupon usage limit exceeded concurrently")
)

// Coupon is a discount code and its eligibility constraints. Nil pointer
// fields mean "no constraint".
type Coupon struct {
	ID                string
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	ValidFrom         time.Time
	ValidTo           time.Time
	UsageLimit        *int
	UsedCount         int
	UsageLimitPerUser *int
	IsActive          bool
}

// CheckInvariants reports the first structural problem with the coupon
// definition, wrapped in ErrInvalidCoupon.
func (c *Coupon) CheckInvariants() error {
	switch {
	case NormalizeCode(c.Code) == "":
		return errors.Wrap(ErrInvalidCoupon, "empty code")
	case c.DiscountType != DiscountPercentage && c.DiscountType != DiscountFixed:
		return errors.Wrapf(ErrInvalidCoupon, "unsupported discount type %q", c.DiscountType)
	case !c.DiscountValue.IsPositive():
		return errors.Wrap(ErrInvalidCoupon, "discount value must be positive")
	case !c.ValidFrom.Before(c.ValidTo):
		return errors.Wrap(ErrInvalidCoupon, "valid_from must be before valid_to")
	case c.UsedCount < 0:
		return errors.Wrap(ErrInvalidCoupon, "negative used count")
	case c.UsageLimit != nil && c.UsedCount > *c.UsageLimit:
		return errors.Wrap(ErrInvalidCoupon, "used count exceeds usage limit")
	case c.MaxDiscountAmount != nil && c.MaxDiscountAmount.IsNegative():
		return errors.Wrap(ErrInvalidCoupon, "negative max discount")
	}
	return nil
}

// NormalizeCode returns the canonical form of a coupon code. Codes compare
// case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redemption is a request to consume one use of a coupon for an order.
type Redemption struct {
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
}

// RedemptionResult describes a committed redemption.
type RedemptionResult struct {
	RecordID  string
	CouponID  string
	UsedCount int
	UsedAt    time.Time
}

// UsageRecord is the append-only audit row written for every redemption.
type UsageRecord struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// Repository provides lookup of live coupons and their usage history.
type Repository interface {
	// FindByCode returns the active, non-deleted coupon for code (any case)
	// or ErrCouponNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountUserUsages returns how many times userID has redeemed the coupon.
	CountUserUsages(ctx context.Context, couponID, userID string) (int, error)
}

// Ledger records redemptions and is the only writer of Coupon.UsedCount.
//
// Redeem must, atomically: re-check the global cap, re-check the per-user
// cap, increment the used count and append a UsageRecord. A failed re-check
// returns ErrConcurrentLimitExceeded and leaves no trace.
type Ledger interface {
	Redeem(ctx context.Context, r Redemption) (*RedemptionResult, error)
}
