package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/pricing"
)

// Status is the fulfilment state of an order. Transitions after placement
// belong to the fulfilment collaborator.
type Status string

// Order statuses.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusReturned  Status = "returned"
	StatusRefunded  Status = "refunded"
)

// Order is a placed order. Items and Totals are frozen at placement.
type Order struct {
	ID         string
	UserID     string
	Items      []pricing.LineItem
	Totals     pricing.Totals
	CouponID   string
	CouponCode string
	Status     Status
	CreatedAt  time.Time
}

// Item is a requested product and quantity, before prices are resolved.
type Item struct {
	ProductID string
	Quantity  int
}

// CartItem is a cart line with the product's current catalog price.
type CartItem struct {
	ProductID        string
	Name             string
	Quantity         int
	CurrentUnitPrice decimal.Decimal
}

// Repository persists placed orders.
type Repository interface {
	// Create stores the order and its line items. When r is non-nil the
	// coupon redemption is committed in the same transaction; if the ledger
	// rejects it, nothing is stored and the ledger error is returned.
	Create(ctx context.Context, o *Order, r *coupon.Redemption) (*coupon.RedemptionResult, error)
}
