package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
	"github.com/xenking/electro-checkout/internal/domain/pricing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func ip(v int) *int {
	return &v
}

var testPolicy = pricing.Policy{
	Tax:      pricing.TaxPolicy{Rate: d("0.18")},
	Shipping: pricing.ShippingPolicy{FlatRate: d("50"), FreeThreshold: d("999")},
}

func liveCoupon(code string, typ coupon.DiscountType, value string) *coupon.Coupon {
	return &coupon.Coupon{
		ID:            "id-" + code,
		Code:          code,
		DiscountType:  typ,
		DiscountValue: d(value),
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(time.Hour),
		IsActive:      true,
	}
}

func TestAssemble_PercentageCappedExample(t *testing.T) {
	c := liveCoupon("TENOFF", coupon.DiscountPercentage, "10")
	c.MaxDiscountAmount = dp("50")
	a := NewAssembler(newCouponRepo(c), coupon.NewValidator())

	got, err := a.Assemble(context.Background(), AssembleRequest{
		UserID:     "u1",
		Items:      []CartItem{{ProductID: "tv", Name: "TV", Quantity: 1, CurrentUnitPrice: d("1000")}},
		CouponCode: "tenoff",
	}, testPolicy)

	require.NoError(t, err)
	assert.True(t, d("1000").Equal(got.Totals.SubTotal))
	assert.True(t, d("50").Equal(got.Totals.DiscountAmount))
	assert.True(t, d("171").Equal(got.Totals.TaxAmount))
	assert.True(t, d("50").Equal(got.Totals.ShippingAmount))
	assert.True(t, d("1171").Equal(got.Totals.TotalAmount))
	require.NoError(t, got.Totals.Check())
	require.NotNil(t, got.Coupon)
	assert.Equal(t, "TENOFF", got.Coupon.Code)
}

func TestAssemble_FixedClampedToSubtotalExample(t *testing.T) {
	c := liveCoupon("BIG500", coupon.DiscountFixed, "500")
	a := NewAssembler(newCouponRepo(c), coupon.NewValidator())

	got, err := a.Assemble(context.Background(), AssembleRequest{
		Items:      []CartItem{{ProductID: "cable", Quantity: 4, CurrentUnitPrice: d("25")}},
		CouponCode: "BIG500",
	}, testPolicy)

	require.NoError(t, err)
	assert.True(t, d("100").Equal(got.Totals.DiscountAmount))
	assert.True(t, d("0").Equal(got.Totals.TaxableBase()))
	assert.True(t, d("0").Equal(got.Totals.TaxAmount))
	assert.True(t, d("50").Equal(got.Totals.ShippingAmount))
	assert.True(t, d("50").Equal(got.Totals.TotalAmount))
}

func TestAssemble_NoCoupon(t *testing.T) {
	a := NewAssembler(newCouponRepo(), coupon.NewValidator())

	got, err := a.Assemble(context.Background(), AssembleRequest{
		Items: []CartItem{
			{ProductID: "p1", Quantity: 2, CurrentUnitPrice: d("10.00")},
			{ProductID: "p2", Quantity: 1, CurrentUnitPrice: d("20.00")},
		},
	}, testPolicy)

	require.NoError(t, err)
	assert.Nil(t, got.Coupon)
	assert.Nil(t, got.Redemption("u1", "o1"))
	assert.True(t, d("40").Equal(got.Totals.SubTotal))
	assert.True(t, d("0").Equal(got.Totals.DiscountAmount))
	assert.True(t, d("7.20").Equal(got.Totals.TaxAmount))
	assert.True(t, d("97.20").Equal(got.Totals.TotalAmount))
}

func TestAssemble_FreeShippingOnDiscountedBase(t *testing.T) {
	// Subtotal 1100 clears the threshold but 1100-200=900 does not.
	c := liveCoupon("FLAT200", coupon.DiscountFixed, "200")
	a := NewAssembler(newCouponRepo(c), coupon.NewValidator())

	got, err := a.Assemble(context.Background(), AssembleRequest{
		Items:      []CartItem{{ProductID: "laptop", Quantity: 1, CurrentUnitPrice: d("1100")}},
		CouponCode: "FLAT200",
	}, testPolicy)

	require.NoError(t, err)
	assert.True(t, d("50").Equal(got.Totals.ShippingAmount))
	assert.True(t, d("162").Equal(got.Totals.TaxAmount))
	assert.True(t, d("1112").Equal(got.Totals.TotalAmount))
}

func TestAssemble_FreezesUnitPrices(t *testing.T) {
	a := NewAssembler(newCouponRepo(), coupon.NewValidator())
	cart := []CartItem{{ProductID: "phone", Name: "Phone", Quantity: 2, CurrentUnitPrice: d("499.99")}}

	got, err := a.Assemble(context.Background(), AssembleRequest{Items: cart}, testPolicy)
	require.NoError(t, err)

	// A later catalog price change must not reach the assembled items.
	cart[0].CurrentUnitPrice = d("599.99")

	require.Len(t, got.Items, 1)
	assert.True(t, d("499.99").Equal(got.Items[0].UnitPrice))
	assert.Equal(t, "Phone", got.Items[0].Name)
	assert.True(t, d("999.98").Equal(got.Totals.SubTotal))
}

func TestAssemble_CouponRejections(t *testing.T) {
	tests := []struct {
		name      string
		coupon    *coupon.Coupon
		userID    string
		userUses  int
		wantErr   error
		wantCause coupon.Reason
	}{
		{
			name: "inactive",
			coupon: func() *coupon.Coupon {
				c := liveCoupon("OFF", coupon.DiscountFixed, "5")
				c.IsActive = false
				return c
			}(),
			wantErr:   coupon.ErrCouponInactive,
			wantCause: coupon.ReasonInactive,
		},
		{
			name: "expired",
			coupon: func() *coupon.Coupon {
				c := liveCoupon("OFF", coupon.DiscountFixed, "5")
				c.ValidFrom = time.Now().Add(-2 * time.Hour)
				c.ValidTo = time.Now().Add(-time.Hour)
				return c
			}(),
			wantErr:   coupon.ErrCouponNotValidNow,
			wantCause: coupon.ReasonNotValidNow,
		},
		{
			name: "usage cap reached",
			coupon: func() *coupon.Coupon {
				c := liveCoupon("OFF", coupon.DiscountFixed, "5")
				c.UsageLimit = ip(100)
				c.UsedCount = 100
				return c
			}(),
			wantErr:   coupon.ErrCouponUsageLimitReached,
			wantCause: coupon.ReasonUsageLimitReached,
		},
		{
			name: "per user cap reached",
			coupon: func() *coupon.Coupon {
				c := liveCoupon("OFF", coupon.DiscountFixed, "5")
				c.UsageLimitPerUser = ip(1)
				return c
			}(),
			userID:    "u1",
			userUses:  1,
			wantErr:   coupon.ErrCouponUserLimitReached,
			wantCause: coupon.ReasonUserLimitReached,
		},
		{
			name: "below minimum",
			coupon: func() *coupon.Coupon {
				c := liveCoupon("OFF", coupon.DiscountFixed, "5")
				c.MinOrderAmount = dp("200")
				return c
			}(),
			wantErr:   coupon.ErrOrderBelowMinimum,
			wantCause: coupon.ReasonBelowMinimum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newCouponRepo(tt.coupon)
			if tt.userID != "" {
				repo.usages[tt.coupon.ID+"/"+tt.userID] = tt.userUses
			}
			a := NewAssembler(repo, coupon.NewValidator())

			got, err := a.Assemble(context.Background(), AssembleRequest{
				UserID:     tt.userID,
				Items:      []CartItem{{ProductID: "p1", Quantity: 1, CurrentUnitPrice: d("100")}},
				CouponCode: "off",
			}, testPolicy)

			assert.Nil(t, got)
			require.ErrorIs(t, err, tt.wantErr)
			var invalid *CouponInvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantCause, invalid.Reason)
			assert.Equal(t, "OFF", invalid.Code)
		})
	}
}

func TestAssemble_UnknownCoupon(t *testing.T) {
	a := NewAssembler(newCouponRepo(), coupon.NewValidator())

	_, err := a.Assemble(context.Background(), AssembleRequest{
		Items:      []CartItem{{ProductID: "p1", Quantity: 1, CurrentUnitPrice: d("100")}},
		CouponCode: "NOPE",
	}, testPolicy)

	require.ErrorIs(t, err, coupon.ErrCouponNotFound)
}

func TestAssemble_CouponLookupError(t *testing.T) {
	repo := newCouponRepo()
	repo.findErr = errors.New("connection reset")
	a := NewAssembler(repo, coupon.NewValidator())

	_, err := a.Assemble(context.Background(), AssembleRequest{
		Items:      []CartItem{{ProductID: "p1", Quantity: 1, CurrentUnitPrice: d("100")}},
		CouponCode: "ANY",
	}, testPolicy)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestAssemble_InvalidCouponValue(t *testing.T) {
	c := liveCoupon("ZERO", coupon.DiscountFixed, "0")
	a := NewAssembler(newCouponRepo(c), coupon.NewValidator())

	_, err := a.Assemble(context.Background(), AssembleRequest{
		Items:      []CartItem{{ProductID: "p1", Quantity: 1, CurrentUnitPrice: d("100")}},
		CouponCode: "ZERO",
	}, testPolicy)

	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestAssemble_InvalidLineItem(t *testing.T) {
	a := NewAssembler(newCouponRepo(), coupon.NewValidator())

	_, err := a.Assemble(context.Background(), AssembleRequest{
		Items: []CartItem{{ProductID: "p1", Quantity: 1, CurrentUnitPrice: d("-1")}},
	}, testPolicy)

	require.ErrorIs(t, err, pricing.ErrInvalidInput)
}

func TestAssemble_TotalsInvariant(t *testing.T) {
	prices := []string{"0.01", "9.99", "99.95", "480", "999", "1000", "2499.49"}
	coupons := []*coupon.Coupon{
		nil,
		liveCoupon("P5", coupon.DiscountPercentage, "5"),
		func() *coupon.Coupon {
			c := liveCoupon("P33", coupon.DiscountPercentage, "33.33")
			c.MaxDiscountAmount = dp("120")
			return c
		}(),
		liveCoupon("F75", coupon.DiscountFixed, "75"),
		liveCoupon("F5000", coupon.DiscountFixed, "5000"),
	}

	for _, price := range prices {
		for qty := 1; qty <= 3; qty++ {
			for _, c := range coupons {
				repo := newCouponRepo()
				code := ""
				if c != nil {
					repo = newCouponRepo(c)
					code = c.Code
				}
				a := NewAssembler(repo, coupon.NewValidator())

				got, err := a.Assemble(context.Background(), AssembleRequest{
					Items:      []CartItem{{ProductID: "p", Quantity: qty, CurrentUnitPrice: d(price)}},
					CouponCode: code,
				}, testPolicy)
				require.NoError(t, err)
				require.NoError(t, got.Totals.Check(), "price %s qty %d coupon %q", price, qty, code)
				assert.True(t, got.Totals.DiscountAmount.LessThanOrEqual(got.Totals.SubTotal))
			}
		}
	}
}
