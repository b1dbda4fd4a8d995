// Package pricing turns a cart, a shipping cost and an optional coupon into
// an order breakdown. Everything here is pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
)

// Input is everything Compute needs.
type Input struct {
	Lines    []cart.Line
	Shipping decimal.Decimal
	Coupon   *coupon.Coupon
}

// Breakdown is the priced result. Total == Subtotal - Discount and
// Subtotal == ItemsSubtotal + ShippingCost hold for every value Compute returns.
type Breakdown struct {
	ItemsSubtotal decimal.Decimal
	ShippingCost  decimal.Decimal
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	CouponApplied bool
}

// Compute prices in. The coupon discount is taken on the subtotal including
// shipping.
func Compute(in Input) Breakdown {
	items := cart.Snapshot{Lines: in.Lines}.ItemsSubtotal()
	shipping := in.Shipping.Round(2)
	subtotal := items.Add(shipping)

	discount, applied := coupon.Discount(in.Coupon, subtotal)

	return Breakdown{
		ItemsSubtotal: items,
		ShippingCost:  shipping,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         subtotal.Sub(discount),
		CouponApplied: applied,
	}
}
