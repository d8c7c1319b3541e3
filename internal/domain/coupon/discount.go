package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ApplyDiscount returns the discount the coupon grants on subTotal. The
// amount never exceeds MaxDiscountAmount (when set) or the subtotal itself,
// and is rounded to cents.
func ApplyDiscount(c *Coupon, subTotal decimal.Decimal) (decimal.Decimal, error) {
	if !c.DiscountValue.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidCoupon, "coupon %s: discount value must be positive", c.Code)
	}

	var raw decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		raw = subTotal.Mul(c.DiscountValue).Div(hundred)
	case DiscountFixed:
		raw = c.DiscountValue
	default:
		return decimal.Zero, errors.Wrapf(ErrInvalidCoupon, "coupon %s: unsupported discount type %q", c.Code, c.DiscountType)
	}

	amount := raw
	if c.MaxDiscountAmount != nil {
		amount = decimal.Min(amount, *c.MaxDiscountAmount)
	}
	amount = decimal.Min(amount, subTotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}
