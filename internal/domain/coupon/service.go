package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Service resolves user-entered codes into redeemable coupons.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a coupon Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Lookup finds the active coupon for code and checks that it is not expired
// or exhausted. It does not redeem the coupon.
func (s *Service) Lookup(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.store.FindActiveByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if err := Validate(c, s.now()); err != nil {
		return nil, err
	}
	return c, nil
}
