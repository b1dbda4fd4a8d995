// Package simulated provides a stand-in payment provider with a fixed
// processing delay and a configurable approval rate.
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/payment"
)

var _ payment.Gateway = (*Gateway)(nil)

// Config tunes the simulated provider.
type Config struct {
	Delay       time.Duration
	SuccessRate float64
}

// Gateway approves charges at random with probability SuccessRate.
type Gateway struct {
	cfg Config
	now func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a Gateway seeded from the clock.
func New(cfg Config) *Gateway {
	seed := uint64(time.Now().UnixNano())
	return NewWithRand(cfg, rand.New(rand.NewPCG(seed, seed>>1)))
}

// NewWithRand creates a Gateway with a caller-supplied random source.
func NewWithRand(cfg Config, rnd *rand.Rand) *Gateway {
	return &Gateway{cfg: cfg, now: time.Now, rnd: rnd}
}

// Charge waits for the configured delay, then approves or declines.
func (g *Gateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, method payment.Method) (*payment.Result, error) {
	if !amount.IsPositive() {
		return nil, errors.Errorf("charge order %s: amount must be positive, got %s", orderID, amount)
	}

	if g.cfg.Delay > 0 {
		timer := time.NewTimer(g.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "charge")
		case <-timer.C:
		}
	}

	roll, suffix := g.draw()
	if roll >= g.cfg.SuccessRate {
		return &payment.Result{
			Success: false,
			Method:  method,
			Message: "Payment declined by issuer",
		}, nil
	}

	return &payment.Result{
		Success:       true,
		Method:        method,
		TransactionID: fmt.Sprintf("TXN-%d-%s", g.now().UnixMilli(), suffix),
		Message:       "Payment approved",
	}, nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func (g *Gateway) draw() (float64, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	roll := g.rnd.Float64()
	b := make([]byte, 9)
	for i := range b {
		b[i] = alphabet[g.rnd.IntN(len(alphabet))]
	}
	return roll, string(b)
}
