package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reason identifies why a coupon was rejected.
type Reason string

// Rejection reasons, in the order the checks run.
const (
	ReasonInactive          Reason = "coupon_inactive"
	ReasonNotValidNow       Reason = "coupon_not_valid_now"
	ReasonUsageLimitReached Reason = "coupon_usage_limit_reached"
	ReasonUserLimitReached  Reason = "coupon_user_limit_reached"
	ReasonBelowMinimum      Reason = "order_below_minimum"
)

// Sentinel errors for each rejection reason.
var (
	ErrCouponInactive          = errors.New("coupon is not active")
	ErrCouponNotValidNow       = errors.New("coupon is not valid at this time")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	ErrCouponUserLimitReached  = errors.New("coupon already used the maximum number of times by this user")
	ErrOrderBelowMinimum       = errors.New("order amount is below the coupon minimum")
)

var reasonErrors = map[Reason]error{
	ReasonInactive:          ErrCouponInactive,
	ReasonNotValidNow:       ErrCouponNotValidNow,
	ReasonUsageLimitReached: ErrCouponUsageLimitReached,
	ReasonUserLimitReached:  ErrCouponUserLimitReached,
	ReasonBelowMinimum:      ErrOrderBelowMinimum,
}

// Err returns the sentinel error for the reason, or nil for an unknown reason.
func (r Reason) Err() error {
	return reasonErrors[r]
}

// Result is the outcome of a validation run.
type Result struct {
	Valid  bool
	Reason Reason
}

// Err returns nil for a valid result and the reason's sentinel otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return r.Reason.Err()
}

func reject(reason Reason) Result {
	return Result{Reason: reason}
}

// Validator checks coupon eligibility. It never mutates the coupon, so a
// validation can be repeated freely; redemption is the Ledger's job.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator that uses the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate runs the eligibility checks in order and stops at the first
// failure. orderAmount is the pre-discount subtotal; priorUserUses is the
// number of earlier redemptions of this coupon by userID.
//
// A coupon with a per-user limit cannot be attributed to an anonymous
// caller, so an empty userID fails the per-user check.
func (v *Validator) Validate(c *Coupon, orderAmount decimal.Decimal, userID string, priorUserUses int) Result {
	if !c.IsActive {
		return reject(ReasonInactive)
	}

	now := v.now()
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return reject(ReasonNotValidNow)
	}

	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return reject(ReasonUsageLimitReached)
	}

	if c.UsageLimitPerUser != nil {
		if userID == "" || priorUserUses >= *c.UsageLimitPerUser {
			return reject(ReasonUserLimitReached)
		}
	}

	if c.MinOrderAmount != nil && orderAmount.LessThan(*c.MinOrderAmount) {
		return reject(ReasonBelowMinimum)
	}

	return Result{Valid: true}
}
