package pricing

import (
	"github.com/shopspring/decimal"
)

// ComputeSubtotal returns the sum of unit price times quantity across items,
// rounded to cents.
func ComputeSubtotal(items []LineItem) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return decimal.Zero, &InvalidLineItemError{ProductID: item.ProductID, Reason: "quantity must be greater than 0"}
		}
		if item.UnitPrice.IsNegative() {
			return decimal.Zero, &InvalidLineItemError{ProductID: item.ProductID, Reason: "unit price must not be negative"}
		}
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum.Round(2), nil
}

// ComputeTax returns base * rate rounded to cents.
func ComputeTax(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Round(2)
}

// ComputeShipping returns zero when base reaches freeThreshold, flatRate otherwise.
func ComputeShipping(base, flatRate, freeThreshold decimal.Decimal) decimal.Decimal {
	if base.GreaterThanOrEqual(freeThreshold) {
		return decimal.Zero
	}
	return flatRate
}

// Finalize computes tax and shipping on the discounted subtotal and returns
// the full breakdown. The discount must already be clamped to the subtotal.
func Finalize(subTotal, discount decimal.Decimal, p Policy) Totals {
	base := subTotal.Sub(discount)
	tax := ComputeTax(base, p.Tax.Rate)
	shipping := ComputeShipping(base, p.Shipping.FlatRate, p.Shipping.FreeThreshold)

	return Totals{
		SubTotal:       subTotal,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		DiscountAmount: discount,
		TotalAmount:    base.Add(tax).Add(shipping),
	}
}
