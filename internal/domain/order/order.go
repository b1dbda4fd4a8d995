package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/payment"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// cancellable lists the statuses an order may be cancelled from.
var cancellable = []Status{StatusPending, StatusProcessing}

// Cancellable reports whether an order in status s may still be cancelled.
func (s Status) Cancellable() bool {
	return slices.Contains(cancellable, s)
}

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var (
	// ErrNotFound is returned by Repository when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned by Repository when the order is no longer
	// in a state that allows the requested change.
	ErrStatusConflict = errors.New("order status changed")
)

// Order is a placed order. Total == Subtotal - Discount and
// Subtotal == items subtotal + ShippingCost.
type Order struct {
	ID             string
	UserID         string
	AddressID      *string
	DeliveryMethod shipping.Method
	CouponID       *string
	ShippingCost   decimal.Decimal
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	Status         Status
	PaymentStatus  PaymentStatus
	PaymentMethod  *payment.Method
	TransactionID  *string
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is an order line. Price is the unit price frozen at order time.
type Item struct {
	ID        string
	OrderID   string
	CupcakeID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// PaymentUpdate records the outcome of a charge attempt.
type PaymentUpdate struct {
	Status        PaymentStatus
	Method        payment.Method
	TransactionID string
}

// Repository persists orders.
type Repository interface {
	// CreateWithItems atomically redeems the order's coupon (when CouponID is
	// set), decrements stock for every item, inserts the order and its items,
	// and clears the owner's cart. Nothing is written when any step fails.
	CreateWithItems(ctx context.Context, o *Order, items []Item) (*Order, error)
	FindByID(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus moves the order to status `to` only if its current status is
	// one of from and no payment claim is live; otherwise it returns
	// ErrStatusConflict.
	UpdateStatus(ctx context.Context, orderID string, to Status, from ...Status) error
	// ClaimPayment reserves the order for one charge attempt for at most
	// lease. It returns ErrStatusConflict when the order is paid, cancelled or
	// already claimed.
	ClaimPayment(ctx context.Context, orderID string, lease time.Duration) error
	// SetPaymentResult records a charge outcome and releases the claim. It
	// returns ErrStatusConflict when the order is already paid or cancelled.
	SetPaymentResult(ctx context.Context, orderID string, u PaymentUpdate) error
}
