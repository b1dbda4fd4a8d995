package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order subtotal, optionally
	// capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrCouponNotFound is returned when no active coupon has the given code.
	ErrCouponNotFound = apperr.NotFound("Coupon", "")
	// ErrCouponExpired is returned when a coupon is past its expiry.
	ErrCouponExpired = apperr.Validation("Coupon has expired")
	// ErrCouponExhausted is returned when a coupon reached its usage limit,
	// either at validation time or when the conditional increment loses a race.
	ErrCouponExhausted = apperr.Validation("Coupon usage limit reached")
)

// Coupon is a discount code and its redemption counters.
type Coupon struct {
	ID           string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinPurchase  *decimal.Decimal
	MaxDiscount  *decimal.Decimal
	UsageLimit   *int
	UsedCount    int
	IsActive     bool
	ExpiresAt    *time.Time
}

// Store provides coupon lookup and the atomic usage increment.
type Store interface {
	// FindActiveByCode returns ErrCouponNotFound for unknown or inactive codes.
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	// IncrementUsage adds one redemption unless the usage limit is reached,
	// in which case it returns ErrCouponExhausted.
	IncrementUsage(ctx context.Context, couponID string) error
}

// NormalizeCode trims and upper-cases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the temporal and usage-count validity of c at now.
// Minimum purchase is not checked here; see Discount.
func Validate(c *Coupon, now time.Time) error {
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrCouponExhausted
	}
	return nil
}
