package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/pricing"
)

// CouponInvalidError reports a coupon that failed validation. It unwraps to
// the reason's sentinel (coupon.ErrCouponInactive and friends).
type CouponInvalidError struct {
	Code   string
	Reason coupon.Reason
}

func (e *CouponInvalidError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason.Err())
}

func (e *CouponInvalidError) Unwrap() error {
	return e.Reason.Err()
}

// AssembleRequest is the input of Assembler.Assemble.
type AssembleRequest struct {
	UserID     string
	Items      []CartItem
	CouponCode string
}

// Assembly is an in-memory priced order, not yet persisted.
type Assembly struct {
	Items  []pricing.LineItem
	Totals pricing.Totals
	// Coupon is the applied coupon, nil when none was requested.
	Coupon *coupon.Coupon
}

// Redemption returns the ledger request for the applied coupon, or nil.
func (a *Assembly) Redemption(userID, orderID string) *coupon.Redemption {
	if a.Coupon == nil {
		return nil
	}
	return &coupon.Redemption{
		CouponID:       a.Coupon.ID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: a.Totals.DiscountAmount,
	}
}

// Assembler prices a cart. It reads coupons but never writes anything, so a
// failed assembly leaves no partial state behind.
type Assembler struct {
	coupons   coupon.Repository
	validator *coupon.Validator
}

// NewAssembler creates an Assembler.
func NewAssembler(coupons coupon.Repository, validator *coupon.Validator) *Assembler {
	return &Assembler{coupons: coupons, validator: validator}
}

// Assemble freezes the cart prices into line items, applies the coupon if
// one is given and returns the final breakdown.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest, policy pricing.Policy) (*Assembly, error) {
	items := make([]pricing.LineItem, len(req.Items))
	for i, ci := range req.Items {
		items[i] = pricing.LineItem{
			ProductID: ci.ProductID,
			Name:      ci.Name,
			UnitPrice: ci.CurrentUnitPrice,
			Quantity:  ci.Quantity,
		}
	}

	subTotal, err := pricing.ComputeSubtotal(items)
	if err != nil {
		return nil, err
	}

	var (
		applied  *coupon.Coupon
		discount = decimal.Zero
	)
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		c, err := a.coupons.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, coupon.ErrCouponNotFound) {
				return nil, err
			}
			return nil, errors.Wrap(err, "lookup coupon")
		}

		prior := 0
		if c.UsageLimitPerUser != nil && req.UserID != "" {
			prior, err = a.coupons.CountUserUsages(ctx, c.ID, req.UserID)
			if err != nil {
				return nil, errors.Wrap(err, "count coupon usages")
			}
		}

		if res := a.validator.Validate(c, subTotal, req.UserID, prior); !res.Valid {
			return nil, &CouponInvalidError{Code: c.Code, Reason: res.Reason}
		}

		discount, err = coupon.ApplyDiscount(c, subTotal)
		if err != nil {
			return nil, err
		}
		applied = c
	}

	return &Assembly{
		Items:  items,
		Totals: pricing.Finalize(subTotal, discount, policy),
		Coupon: applied,
	}, nil
}
