package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/order"
	"github.com/xenking/electro-checkout/internal/domain/pricing"
)

// Reasons reported for coupon failures that are not validation results.
const (
	reasonCouponNotFound = "coupon_not_found"
	reasonInvalidCoupon  = "invalid_coupon"
	reasonUnavailable    = "coupon_unavailable"
)

// writeDomainError maps service errors onto HTTP responses. Anything
// unrecognised is logged and answered with 500.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		unavailable *order.CouponUnavailableError
		invalid     *order.CouponInvalidError
		lineItem    *pricing.InvalidLineItemError
		notFound    *order.ProductNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, apiError{Message: err.Error()})
	case errors.As(err, &lineItem):
		writeError(w, http.StatusUnprocessableEntity, apiError{Message: lineItem.Error()})
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnprocessableEntity, apiError{Message: notFound.Error()})
	case errors.As(err, &unavailable):
		writeError(w, http.StatusConflict, apiError{
			Message:  unavailable.Error(),
			Reason:   reasonUnavailable,
			Repriced: unavailable.Repriced,
		})
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, apiError{
			Message: invalid.Error(),
			Reason:  string(invalid.Reason),
		})
	case errors.Is(err, coupon.ErrCouponNotFound):
		writeError(w, http.StatusUnprocessableEntity, apiError{Message: "coupon not found", Reason: reasonCouponNotFound})
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, apiError{Message: "invalid coupon", Reason: reasonInvalidCoupon})
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, apiError{Message: "internal error"})
	}
}
