// Package stock checks requested cart quantities against inventory.
package stock

import (
	"fmt"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
	"github.com/xenking/cupcake-checkout/internal/domain/cart"
)

// InsufficientError reports a cart line that asks for more units than are in
// stock. It classifies as a validation error.
type InsufficientError struct {
	CupcakeID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("Product %q does not have enough stock. Available: %d units, requested: %d units.",
		e.Name, e.Available, e.Requested)
}

func (e *InsufficientError) Unwrap() error { return apperr.ErrValidation }

// Validate fails on the first line whose quantity exceeds its available stock.
// The result is advisory; the order store re-checks inside its transaction.
func Validate(s cart.Snapshot) error {
	for _, l := range s.Lines {
		if l.Quantity > l.AvailableStock {
			return &InsufficientError{
				CupcakeID: l.CupcakeID,
				Name:      l.Name,
				Available: l.AvailableStock,
				Requested: l.Quantity,
			}
		}
	}
	return nil
}
