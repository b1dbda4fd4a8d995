package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/catalog"
)

const getCupcakeSQL = `SELECT id, name, price, stock, is_active FROM cupcakes WHERE id = $1`

var _ catalog.Repository = (*CupcakeStore)(nil)

// CupcakeStore implements catalog.Repository backed by PostgreSQL.
type CupcakeStore struct {
	pool *pgxpool.Pool
}

// NewCupcakeStore returns a CupcakeStore that uses the given pool.
func NewCupcakeStore(pool *pgxpool.Pool) *CupcakeStore {
	return &CupcakeStore{pool: pool}
}

type cupcakeRow struct {
	ID       string          `db:"id"`
	Name     string          `db:"name"`
	Price    decimal.Decimal `db:"price"`
	Stock    int             `db:"stock"`
	IsActive bool            `db:"is_active"`
}

// GetByID returns a cupcake regardless of its active flag.
func (s *CupcakeStore) GetByID(ctx context.Context, id string) (*catalog.Cupcake, error) {
	rows, _ := s.pool.Query(ctx, getCupcakeSQL, id)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[cupcakeRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting cupcake %q: %w", id, err)
	}

	return &catalog.Cupcake{
		ID:       row.ID,
		Name:     row.Name,
		Price:    row.Price,
		Stock:    row.Stock,
		IsActive: row.IsActive,
	}, nil
}
