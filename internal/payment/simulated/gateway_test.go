package simulated

import (
	"context"
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cupcake-checkout/internal/domain/payment"
)

var txnPattern = regexp.MustCompile(`^TXN-\d+-[a-z0-9]{9}$`)

func TestCharge_AlwaysApproves(t *testing.T) {
	g := NewWithRand(Config{SuccessRate: 1}, rand.New(rand.NewPCG(1, 2)))

	res, err := g.Charge(context.Background(), "o-1", decimal.NewFromInt(10), payment.Pix)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, payment.Pix, res.Method)
	assert.Regexp(t, txnPattern, res.TransactionID)
}

func TestCharge_AlwaysDeclines(t *testing.T) {
	g := NewWithRand(Config{SuccessRate: 0}, rand.New(rand.NewPCG(1, 2)))

	res, err := g.Charge(context.Background(), "o-1", decimal.NewFromInt(10), payment.Card)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.TransactionID)
}

func TestCharge_RespectsContext(t *testing.T) {
	g := NewWithRand(Config{Delay: time.Hour, SuccessRate: 1}, rand.New(rand.NewPCG(1, 2)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Charge(ctx, "o-1", decimal.NewFromInt(10), payment.Card)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCharge_RejectsNonPositiveAmount(t *testing.T) {
	g := New(Config{SuccessRate: 1})

	_, err := g.Charge(context.Background(), "o-1", decimal.Zero, payment.Card)
	require.Error(t, err)
}
