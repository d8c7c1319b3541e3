// Package pricing computes order subtotals, tax and shipping with decimal
// arithmetic. All amounts are rounded half-up to two decimal places.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when a line item has a non-positive quantity or
// a negative unit price.
var ErrInvalidInput = errors.New("invalid line item")

// InvalidLineItemError identifies the malformed line item.
type InvalidLineItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item for product %s: %s", e.ProductID, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e *InvalidLineItemError) Unwrap() error {
	return ErrInvalidInput
}

// LineItem is a product line with its unit price frozen at order time.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Total returns UnitPrice * Quantity rounded to cents.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))).Round(2)
}

// Totals is the price breakdown of an order.
type Totals struct {
	SubTotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// TaxableBase returns the subtotal after discount.
func (t Totals) TaxableBase() decimal.Decimal {
	return t.SubTotal.Sub(t.DiscountAmount)
}

// Check reports whether the breakdown adds up and the total is non-negative.
func (t Totals) Check() error {
	want := t.SubTotal.Sub(t.DiscountAmount).Add(t.TaxAmount).Add(t.ShippingAmount)
	if !want.Equal(t.TotalAmount) {
		return errors.Errorf("total %s does not match breakdown %s", t.TotalAmount, want)
	}
	if t.TotalAmount.IsNegative() {
		return errors.Errorf("negative total %s", t.TotalAmount)
	}
	return nil
}

// TaxPolicy is the flat tax rate applied to the discounted subtotal.
type TaxPolicy struct {
	Rate decimal.Decimal
}

// ShippingPolicy charges FlatRate unless the discounted subtotal reaches
// FreeThreshold.
type ShippingPolicy struct {
	FlatRate      decimal.Decimal
	FreeThreshold decimal.Decimal
}

// Policy bundles the store-wide tax and shipping configuration.
type Policy struct {
	Tax      TaxPolicy
	Shipping ShippingPolicy
}
