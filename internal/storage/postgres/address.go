package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cupcake-checkout/internal/domain/address"
)

const findOwnedAddressSQL = `SELECT id, user_id, street, city, state, zip_code
	FROM addresses WHERE id = $1 AND user_id = $2`

var _ address.Store = (*AddressStore)(nil)

// AddressStore implements address.Store backed by PostgreSQL.
type AddressStore struct {
	pool *pgxpool.Pool
}

// NewAddressStore returns an AddressStore that uses the given pool.
func NewAddressStore(pool *pgxpool.Pool) *AddressStore {
	return &AddressStore{pool: pool}
}

// FindOwnedByID returns address.ErrNotFound both for unknown ids and for
// addresses of other users.
func (s *AddressStore) FindOwnedByID(ctx context.Context, userID, addressID string) (*address.Address, error) {
	var a address.Address
	err := s.pool.QueryRow(ctx, findOwnedAddressSQL, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.ZipCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("finding address %q: %w", addressID, err)
	}
	return &a, nil
}
