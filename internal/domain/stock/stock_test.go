package stock

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
	"github.com/xenking/cupcake-checkout/internal/domain/cart"
)

func TestValidate(t *testing.T) {
	t.Run("all lines fit", func(t *testing.T) {
		s := cart.Snapshot{Lines: []cart.Line{
			{CupcakeID: "c1", Name: "Vanilla", Quantity: 2, AvailableStock: 2},
			{CupcakeID: "c2", Name: "Lemon", Quantity: 1, AvailableStock: 9},
		}}
		require.NoError(t, Validate(s))
	})

	t.Run("names the offending line", func(t *testing.T) {
		s := cart.Snapshot{Lines: []cart.Line{
			{CupcakeID: "c1", Name: "Vanilla", Quantity: 1, AvailableStock: 4},
			{CupcakeID: "c2", Name: "Red Velvet", Quantity: 5, AvailableStock: 3},
		}}

		err := Validate(s)
		require.ErrorIs(t, err, apperr.ErrValidation)

		var insufficient *InsufficientError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, "c2", insufficient.CupcakeID)
		assert.Equal(t, 3, insufficient.Available)
		assert.Equal(t, 5, insufficient.Requested)
		assert.Contains(t, err.Error(), "Red Velvet")
	})

	t.Run("empty snapshot", func(t *testing.T) {
		require.NoError(t, Validate(cart.Snapshot{}))
	})
}
