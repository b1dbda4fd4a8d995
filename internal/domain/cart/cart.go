package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Quantity bounds for a single add-to-cart request.
const (
	MinQuantity = 1
	MaxQuantity = 100
)

var (
	// ErrLineNotFound is returned by Store when the user has no line for a cupcake.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrCacheMiss is returned by Cache when no snapshot is stored for a user.
	ErrCacheMiss = errors.New("cart cache miss")
)

// Line is one cupcake in a user's cart, joined with its live catalog data.
type Line struct {
	CupcakeID      string          `json:"cupcakeId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	AvailableStock int             `json:"availableStock"`
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the transient read of a cart taken at the start of checkout.
type Snapshot struct {
	UserID string `json:"userId"`
	Lines  []Line `json:"lines"`
}

// IsEmpty reports whether the cart has no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// ItemsSubtotal sums every line total, rounded to cents.
func (s Snapshot) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(l.Total())
	}
	return sum.Round(2)
}

// Store persists cart lines.
type Store interface {
	ReadItems(ctx context.Context, userID string) (Snapshot, error)
	FindLine(ctx context.Context, userID, cupcakeID string) (*Line, error)
	InsertLine(ctx context.Context, userID, cupcakeID string, quantity int) error
	SetQuantity(ctx context.Context, userID, cupcakeID string, quantity int) error
	DeleteLine(ctx context.Context, userID, cupcakeID string) error
	Clear(ctx context.Context, userID string) error
}

// Cache holds rendered cart snapshots for the cart view.
type Cache interface {
	Get(ctx context.Context, userID string) (*Snapshot, error)
	Set(ctx context.Context, s *Snapshot) error
	Delete(ctx context.Context, userID string) error
}

// NopCache is a Cache that never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Snapshot, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, *Snapshot) error           { return nil }
func (NopCache) Delete(context.Context, string) error           { return nil }
