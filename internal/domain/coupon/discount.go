package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount computes the discount c grants on subtotal. It reports
// applied=false, with a zero amount, when the subtotal is below the coupon's
// minimum purchase; that case is a silent skip, not an error.
func Discount(c *Coupon, subtotal decimal.Decimal) (amount decimal.Decimal, applied bool) {
	if c == nil {
		return decimal.Zero, false
	}
	if c.MinPurchase != nil && subtotal.LessThan(*c.MinPurchase) {
		return decimal.Zero, false
	}

	switch c.DiscountType {
	case DiscountPercentage:
		amount = applyPercentage(c, subtotal)
	case DiscountFixed:
		amount = applyFixed(c, subtotal)
	default:
		return decimal.Zero, false
	}
	return floorAtZero(amount).Round(2), true
}

func applyPercentage(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	amount := subtotal.Mul(c.Value).Div(hundred)
	if c.MaxDiscount != nil {
		amount = decimal.Min(amount, *c.MaxDiscount)
	}
	return amount
}

func applyFixed(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	return decimal.Min(c.Value, subtotal)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
