package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name        string
		in          Input
		wantItems   string
		wantSub     string
		wantDisc    string
		wantTotal   string
		wantApplied bool
	}{
		{
			name:      "items only",
			in:        Input{Lines: []cart.Line{{UnitPrice: d("12.90"), Quantity: 2}}},
			wantItems: "25.80", wantSub: "25.80", wantDisc: "0", wantTotal: "25.80",
		},
		{
			name: "min purchase not met leaves discount at zero",
			in: Input{
				Lines:  []cart.Line{{UnitPrice: d("12.90"), Quantity: 2}},
				Coupon: &coupon.Coupon{DiscountType: coupon.DiscountPercentage, Value: d("10"), MinPurchase: dp("50.00")},
			},
			wantItems: "25.80", wantSub: "25.80", wantDisc: "0", wantTotal: "25.80",
		},
		{
			name: "qualifying percentage coupon",
			in: Input{
				Lines:  []cart.Line{{UnitPrice: d("25.00"), Quantity: 2}},
				Coupon: &coupon.Coupon{DiscountType: coupon.DiscountPercentage, Value: d("10")},
			},
			wantItems: "50.00", wantSub: "50.00", wantDisc: "5.00", wantTotal: "45.00", wantApplied: true,
		},
		{
			name: "shipping counts toward subtotal and discount base",
			in: Input{
				Lines:    []cart.Line{{UnitPrice: d("12.90"), Quantity: 2}, {UnitPrice: d("8.50"), Quantity: 1}},
				Shipping: d("15"),
				Coupon:   &coupon.Coupon{DiscountType: coupon.DiscountPercentage, Value: d("10")},
			},
			wantItems: "34.30", wantSub: "49.30", wantDisc: "4.93", wantTotal: "44.37", wantApplied: true,
		},
		{
			name: "fixed coupon never drives total negative",
			in: Input{
				Lines:  []cart.Line{{UnitPrice: d("4.00"), Quantity: 1}},
				Coupon: &coupon.Coupon{DiscountType: coupon.DiscountFixed, Value: d("10")},
			},
			wantItems: "4.00", wantSub: "4.00", wantDisc: "4.00", wantTotal: "0", wantApplied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute(tt.in)
			assert.True(t, d(tt.wantItems).Equal(b.ItemsSubtotal), "items: %s", b.ItemsSubtotal)
			assert.True(t, d(tt.wantSub).Equal(b.Subtotal), "subtotal: %s", b.Subtotal)
			assert.True(t, d(tt.wantDisc).Equal(b.Discount), "discount: %s", b.Discount)
			assert.True(t, d(tt.wantTotal).Equal(b.Total), "total: %s", b.Total)
			assert.Equal(t, tt.wantApplied, b.CouponApplied)

			assert.True(t, b.Total.Equal(b.Subtotal.Sub(b.Discount)))
			assert.True(t, b.Subtotal.Equal(b.ItemsSubtotal.Add(b.ShippingCost)))
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	in := Input{
		Lines:    []cart.Line{{UnitPrice: d("3.33"), Quantity: 3}, {UnitPrice: d("0.01"), Quantity: 7}},
		Shipping: d("12.345"),
		Coupon:   &coupon.Coupon{DiscountType: coupon.DiscountPercentage, Value: d("33.3"), MaxDiscount: dp("8")},
	}

	first := Compute(in)
	for range 10 {
		again := Compute(in)
		assert.Equal(t, first.ItemsSubtotal.String(), again.ItemsSubtotal.String())
		assert.Equal(t, first.Subtotal.String(), again.Subtotal.String())
		assert.Equal(t, first.Discount.String(), again.Discount.String())
		assert.Equal(t, first.Total.String(), again.Total.String())
	}
}
