package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
)

const (
	findCouponSQL = `SELECT id, code, discount_type, value, min_purchase, max_discount,
		usage_limit, used_count, is_active, expires_at
	FROM coupons WHERE upper(code) = upper($1) AND is_active`

	// The usage_limit guard makes the increment safe under concurrent checkouts.
	incrementCouponSQL = `UPDATE coupons SET used_count = used_count + 1
	WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, value, min_purchase, max_discount, usage_limit, is_active, expires_at)
	VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (code) DO NOTHING`
)

var _ coupon.Store = (*CouponStore)(nil)

// CouponStore implements coupon.Store backed by PostgreSQL.
type CouponStore struct {
	pool *pgxpool.Pool
}

// NewCouponStore returns a CouponStore that uses the given pool.
func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

type couponRow struct {
	ID           string           `db:"id"`
	Code         string           `db:"code"`
	DiscountType string           `db:"discount_type"`
	Value        decimal.Decimal  `db:"value"`
	MinPurchase  *decimal.Decimal `db:"min_purchase"`
	MaxDiscount  *decimal.Decimal `db:"max_discount"`
	UsageLimit   *int             `db:"usage_limit"`
	UsedCount    int              `db:"used_count"`
	IsActive     bool             `db:"is_active"`
	ExpiresAt    *time.Time       `db:"expires_at"`
}

// FindActiveByCode looks up an active coupon, ignoring case.
// Returns coupon.ErrCouponNotFound when no matching active coupon exists.
func (s *CouponStore) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, _ := s.pool.Query(ctx, findCouponSQL, code)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[couponRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	return &coupon.Coupon{
		ID:           row.ID,
		Code:         row.Code,
		DiscountType: coupon.DiscountType(row.DiscountType),
		Value:        row.Value,
		MinPurchase:  row.MinPurchase,
		MaxDiscount:  row.MaxDiscount,
		UsageLimit:   row.UsageLimit,
		UsedCount:    row.UsedCount,
		IsActive:     row.IsActive,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// IncrementUsage redeems the coupon once outside of an order.
func (s *CouponStore) IncrementUsage(ctx context.Context, couponID string) error {
	return incrementCouponUsage(ctx, s.pool, couponID)
}

// Insert stores c unless a coupon with the same code exists. It reports
// whether a row was written.
func (s *CouponStore) Insert(ctx context.Context, c *coupon.Coupon) (bool, error) {
	tag, err := s.pool.Exec(ctx, upsertCouponSQL,
		c.Code, string(c.DiscountType), c.Value, c.MinPurchase, c.MaxDiscount,
		c.UsageLimit, c.IsActive, c.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return tag.RowsAffected() == 1, nil
}

func incrementCouponUsage(ctx context.Context, q querier, couponID string) error {
	tag, err := q.Exec(ctx, incrementCouponSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponExhausted
	}
	return nil
}
