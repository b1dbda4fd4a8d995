package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
)

const (
	readCartSQL = `SELECT ci.cupcake_id, c.name, ci.quantity, c.price, c.stock
	FROM cart_items ci
	JOIN cupcakes c ON c.id = ci.cupcake_id
	WHERE ci.user_id = $1
	ORDER BY ci.created_at, ci.cupcake_id`

	findCartLineSQL = `SELECT ci.cupcake_id, c.name, ci.quantity, c.price, c.stock
	FROM cart_items ci
	JOIN cupcakes c ON c.id = ci.cupcake_id
	WHERE ci.user_id = $1 AND ci.cupcake_id = $2`

	insertCartLineSQL = `INSERT INTO cart_items (user_id, cupcake_id, quantity) VALUES ($1, $2, $3)
	ON CONFLICT (user_id, cupcake_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND cupcake_id = $2`
	deleteCartLineSQL  = `DELETE FROM cart_items WHERE user_id = $1 AND cupcake_id = $2`
	clearCartSQL       = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

type cartLineRow struct {
	CupcakeID string          `db:"cupcake_id"`
	Name      string          `db:"name"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
}

func (r cartLineRow) line() cart.Line {
	return cart.Line{
		CupcakeID:      r.CupcakeID,
		Name:           r.Name,
		Quantity:       r.Quantity,
		UnitPrice:      r.Price,
		AvailableStock: r.Stock,
	}
}

// ReadItems returns the user's cart joined with live prices and stock.
func (s *CartStore) ReadItems(ctx context.Context, userID string) (cart.Snapshot, error) {
	rows, _ := s.pool.Query(ctx, readCartSQL, userID)
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		r, err := pgx.RowToStructByName[cartLineRow](row)
		return r.line(), err
	})
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("reading cart of %q: %w", userID, err)
	}
	return cart.Snapshot{UserID: userID, Lines: lines}, nil
}

// FindLine returns cart.ErrLineNotFound when the user has no line for cupcakeID.
func (s *CartStore) FindLine(ctx context.Context, userID, cupcakeID string) (*cart.Line, error) {
	rows, _ := s.pool.Query(ctx, findCartLineSQL, userID, cupcakeID)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[cartLineRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, fmt.Errorf("finding cart line: %w", err)
	}
	l := row.line()
	return &l, nil
}

func (s *CartStore) InsertLine(ctx context.Context, userID, cupcakeID string, quantity int) error {
	if _, err := s.pool.Exec(ctx, insertCartLineSQL, userID, cupcakeID, quantity); err != nil {
		return fmt.Errorf("inserting cart line: %w", err)
	}
	return nil
}

func (s *CartStore) SetQuantity(ctx context.Context, userID, cupcakeID string, quantity int) error {
	tag, err := s.pool.Exec(ctx, setCartQuantitySQL, userID, cupcakeID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (s *CartStore) DeleteLine(ctx context.Context, userID, cupcakeID string) error {
	tag, err := s.pool.Exec(ctx, deleteCartLineSQL, userID, cupcakeID)
	if err != nil {
		return fmt.Errorf("deleting cart line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}
