package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func intPtr(v int) *int { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		coupon  Coupon
		wantErr error
	}{
		{name: "no limits", coupon: Coupon{}},
		{name: "expires in the future", coupon: Coupon{ExpiresAt: timePtr(fixedNow.Add(time.Hour))}},
		{name: "expired", coupon: Coupon{ExpiresAt: timePtr(fixedNow.Add(-time.Second))}, wantErr: ErrCouponExpired},
		{name: "below usage limit", coupon: Coupon{UsageLimit: intPtr(3), UsedCount: 2}},
		{name: "usage limit reached", coupon: Coupon{UsageLimit: intPtr(3), UsedCount: 3}, wantErr: ErrCouponExhausted},
		{name: "single use already spent", coupon: Coupon{UsageLimit: intPtr(1), UsedCount: 1}, wantErr: ErrCouponExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.coupon, fixedNow)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestService_Lookup(t *testing.T) {
	store := &mockStore{coupons: map[string]*Coupon{
		"SAVE10":  {ID: "c-1", Code: "SAVE10", DiscountType: DiscountPercentage, Value: d("10")},
		"OLDDEAL": {ID: "c-2", Code: "OLDDEAL", ExpiresAt: timePtr(fixedNow.Add(-time.Hour))},
	}}
	svc := &Service{store: store, now: func() time.Time { return fixedNow }}

	t.Run("normalizes the code", func(t *testing.T) {
		c, err := svc.Lookup(context.Background(), "  save10 ")
		require.NoError(t, err)
		assert.Equal(t, "c-1", c.ID)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.Lookup(context.Background(), "NOPE")
		require.ErrorIs(t, err, ErrCouponNotFound)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("expired code", func(t *testing.T) {
		_, err := svc.Lookup(context.Background(), "OLDDEAL")
		require.ErrorIs(t, err, ErrCouponExpired)
	})

	t.Run("store failure", func(t *testing.T) {
		failing := &Service{store: &mockStore{err: errors.New("db down")}, now: time.Now}
		_, err := failing.Lookup(context.Background(), "SAVE10")
		require.Error(t, err)
		assert.NotErrorIs(t, err, apperr.ErrNotFound)
	})
}

// --- Mock implementations ---

type mockStore struct {
	coupons map[string]*Coupon
	err     error
}

func (m *mockStore) FindActiveByCode(_ context.Context, code string) (*Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return c, nil
}

func (m *mockStore) IncrementUsage(_ context.Context, _ string) error {
	return nil
}
