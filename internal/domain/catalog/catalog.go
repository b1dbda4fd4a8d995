package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested cupcake does not exist.
var ErrNotFound = errors.New("cupcake not found")

// Cupcake is a catalog item with its live price and stock level.
type Cupcake struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Stock    int
	IsActive bool
}

// Available reports whether at least one unit can be sold.
func (c *Cupcake) Available() bool {
	return c.IsActive && c.Stock > 0
}

// Repository defines read operations for the cupcake catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Cupcake, error)
}
