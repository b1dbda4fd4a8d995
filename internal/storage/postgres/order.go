package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/order"
	"github.com/xenking/cupcake-checkout/internal/domain/payment"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
	"github.com/xenking/cupcake-checkout/internal/domain/stock"
	"github.com/xenking/cupcake-checkout/internal/outbox"
)

const orderColumns = `id, user_id, address_id, delivery_method, coupon_id, shipping_cost, subtotal,
	discount, total, status, payment_status, payment_method, transaction_id, created_at, updated_at`

const (
	decrementStockSQL = `UPDATE cupcakes SET stock = stock - $1 WHERE id = $2 AND stock >= $1`
	stockLevelSQL     = `SELECT name, stock FROM cupcakes WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (id, user_id, address_id, delivery_method, coupon_id,
		shipping_cost, subtotal, discount, total, status, payment_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING ` + orderColumns

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, cupcake_id, name, quantity, price)
	VALUES ($1, $2, $3, $4, $5, $6)`

	findOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	orderItemsSQL = `SELECT id, order_id, cupcake_id, name, quantity, price
	FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, name, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
	WHERE id = $1 AND status = ANY($3)
	  AND (payment_claimed_until IS NULL OR payment_claimed_until < now())
	RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	claimPaymentSQL = `UPDATE orders
	SET payment_claimed_until = now() + $2::bigint * interval '1 millisecond'
	WHERE id = $1 AND payment_status <> 'paid' AND status <> 'cancelled'
	  AND (payment_claimed_until IS NULL OR payment_claimed_until < now())`

	setPaymentResultSQL = `UPDATE orders
	SET payment_status = $2, payment_method = $3, transaction_id = NULLIF($4, ''),
	    payment_claimed_until = NULL, updated_at = now()
	WHERE id = $1 AND payment_status <> 'paid' AND status <> 'cancelled'
	RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore implements order.Repository backed by PostgreSQL. Every state
// change writes its outbox event in the same transaction.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

type orderRow struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	AddressID      *string         `db:"address_id"`
	DeliveryMethod string          `db:"delivery_method"`
	CouponID       *string         `db:"coupon_id"`
	ShippingCost   decimal.Decimal `db:"shipping_cost"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	Discount       decimal.Decimal `db:"discount"`
	Total          decimal.Decimal `db:"total"`
	Status         string          `db:"status"`
	PaymentStatus  string          `db:"payment_status"`
	PaymentMethod  *string         `db:"payment_method"`
	TransactionID  *string         `db:"transaction_id"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r orderRow) order() order.Order {
	o := order.Order{
		ID:             r.ID,
		UserID:         r.UserID,
		AddressID:      r.AddressID,
		DeliveryMethod: shipping.Method(r.DeliveryMethod),
		CouponID:       r.CouponID,
		ShippingCost:   r.ShippingCost,
		Subtotal:       r.Subtotal,
		Discount:       r.Discount,
		Total:          r.Total,
		Status:         order.Status(r.Status),
		PaymentStatus:  order.PaymentStatus(r.PaymentStatus),
		TransactionID:  r.TransactionID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.PaymentMethod != nil {
		m := payment.Method(*r.PaymentMethod)
		o.PaymentMethod = &m
	}
	return o
}

type orderItemRow struct {
	ID        string          `db:"id"`
	OrderID   string          `db:"order_id"`
	CupcakeID string          `db:"cupcake_id"`
	Name      string          `db:"name"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
}

// CreateWithItems commits the whole checkout in one transaction: coupon
// redemption, stock decrements, the order and its items, the cart clear and
// the order.created event. Any failure rolls everything back.
func (s *OrderStore) CreateWithItems(ctx context.Context, o *order.Order, items []order.Item) (*order.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if o.CouponID != nil {
		if err := incrementCouponUsage(ctx, tx, *o.CouponID); err != nil {
			return nil, err
		}
	}

	// Lock cupcake rows in a stable order so concurrent checkouts of the same
	// items cannot deadlock.
	byCupcake := slices.Clone(items)
	slices.SortFunc(byCupcake, func(a, b order.Item) int { return strings.Compare(a.CupcakeID, b.CupcakeID) })
	for _, it := range byCupcake {
		if err := decrementStock(ctx, tx, it); err != nil {
			return nil, err
		}
	}

	rows, _ := tx.Query(ctx, insertOrderSQL,
		o.ID, o.UserID, o.AddressID, string(o.DeliveryMethod), o.CouponID,
		o.ShippingCost, o.Subtotal, o.Discount, o.Total, string(o.Status), string(o.PaymentStatus),
	)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		return nil, fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	created := row.order()

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(insertOrderItemSQL, it.ID, created.ID, it.CupcakeID, it.Name, it.Quantity, it.Price)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("inserting items of order %q: %w", o.ID, err)
	}
	created.Items = items

	if _, err := tx.Exec(ctx, clearCartSQL, o.UserID); err != nil {
		return nil, fmt.Errorf("clearing cart: %w", err)
	}

	if err := insertEvent(ctx, tx, outbox.NewOrderEvent(outbox.OrderCreated, &created)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return &created, nil
}

func decrementStock(ctx context.Context, q querier, it order.Item) error {
	tag, err := q.Exec(ctx, decrementStockSQL, it.Quantity, it.CupcakeID)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", it.CupcakeID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	ie := &stock.InsufficientError{CupcakeID: it.CupcakeID, Name: it.Name, Requested: it.Quantity}
	// Report the level seen inside the transaction; a vanished row reads as zero.
	err = q.QueryRow(ctx, stockLevelSQL, it.CupcakeID).Scan(&ie.Name, &ie.Available)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reading stock of %q: %w", it.CupcakeID, err)
	}
	return ie
}

// FindByID returns the order with its items, or order.ErrNotFound.
func (s *OrderStore) FindByID(ctx context.Context, orderID string) (*order.Order, error) {
	rows, _ := s.pool.Query(ctx, findOrderSQL, orderID)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", orderID, err)
	}

	o := row.order()
	items, err := s.items(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// ListByUser returns the user's orders with items, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, _ := s.pool.Query(ctx, listOrdersSQL, userID)
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		r, err := pgx.RowToStructByName[orderRow](row)
		return r.order(), err
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := s.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *OrderStore) items(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	rows, _ := s.pool.Query(ctx, orderItemsSQL, orderIDs)
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[orderItemRow])
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}

	out := make(map[string][]order.Item, len(orderIDs))
	for _, r := range list {
		out[r.OrderID] = append(out[r.OrderID], order.Item{
			ID:        r.ID,
			OrderID:   r.OrderID,
			CupcakeID: r.CupcakeID,
			Name:      r.Name,
			Quantity:  r.Quantity,
			Price:     r.Price,
		})
	}
	return out, nil
}

// UpdateStatus moves the order to `to` when its status is one of from, and
// records the matching event.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, to order.Status, from ...order.Status) error {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning status transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, _ := tx.Query(ctx, updateOrderStatusSQL, orderID, string(to), allowed)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[orderRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return missingOrConflict(ctx, tx, orderID)
	}
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", orderID, err)
	}

	o := row.order()
	if err := insertEvent(ctx, tx, outbox.NewOrderEvent(outbox.StatusEvent(to), &o)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing status of order %q: %w", orderID, err)
	}
	return nil
}

// ClaimPayment marks the order as being charged until lease passes. Only one
// claim can be live; paid and cancelled orders cannot be claimed.
func (s *OrderStore) ClaimPayment(ctx context.Context, orderID string, lease time.Duration) error {
	tag, err := s.pool.Exec(ctx, claimPaymentSQL, orderID, lease.Milliseconds())
	if err != nil {
		return fmt.Errorf("claiming payment of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return missingOrConflict(ctx, s.pool, orderID)
}

func missingOrConflict(ctx context.Context, q querier, orderID string) error {
	var exists bool
	if err := q.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", orderID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// SetPaymentResult records a charge outcome together with its
// order.payment_paid or order.payment_failed event and releases the payment
// claim. A paid or cancelled order is left untouched.
func (s *OrderStore) SetPaymentResult(ctx context.Context, orderID string, u order.PaymentUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning payment transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, _ := tx.Query(ctx, setPaymentResultSQL, orderID, string(u.Status), string(u.Method), u.TransactionID)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[orderRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return missingOrConflict(ctx, tx, orderID)
	}
	if err != nil {
		return fmt.Errorf("setting payment of order %q: %w", orderID, err)
	}

	o := row.order()
	if err := insertEvent(ctx, tx, outbox.NewOrderEvent(outbox.PaymentEvent(u.Status), &o)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing payment of order %q: %w", orderID, err)
	}
	return nil
}
