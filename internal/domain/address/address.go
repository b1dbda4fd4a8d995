package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Address is a delivery destination owned by a user.
type Address struct {
	ID      string
	UserID  string
	Street  string
	City    string
	State   string
	ZipCode string
}

// Store resolves addresses on behalf of their owner.
type Store interface {
	FindOwnedByID(ctx context.Context, userID, addressID string) (*Address, error)
}
