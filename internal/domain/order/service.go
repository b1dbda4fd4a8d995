package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/address"
	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
	"github.com/xenking/cupcake-checkout/internal/domain/cart"
	"github.com/xenking/cupcake-checkout/internal/domain/catalog"
	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
	"github.com/xenking/cupcake-checkout/internal/domain/payment"
	"github.com/xenking/cupcake-checkout/internal/domain/pricing"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
	"github.com/xenking/cupcake-checkout/internal/domain/stock"
)

// PaymentFailedMessage is shown to the customer when a charge does not go
// through. The order is kept and payment can be retried.
const PaymentFailedMessage = "Payment processing failed. Please try again."

const paymentClaimSlack = 30 * time.Second

// Carts is the slice of the cart service used by checkout and reorder.
type Carts interface {
	Snapshot(ctx context.Context, userID string) (cart.Snapshot, error)
	AddItem(ctx context.Context, userID, cupcakeID string, quantity int) error
	Invalidate(ctx context.Context, userID string)
}

// Coupons resolves a code into a coupon that is currently valid.
type Coupons interface {
	Lookup(ctx context.Context, code string) (*coupon.Coupon, error)
}

// Quoter prices delivery.
type Quoter interface {
	Quote(ctx context.Context, zipCode string, method shipping.Method, orderValue decimal.Decimal) shipping.Quote
}

// Idempotency guards checkout against client retries.
type Idempotency interface {
	// Reserve claims key for userID. When the key was already used it returns
	// reserved=false and, if that checkout finished, the order it produced.
	Reserve(ctx context.Context, userID, key string) (orderID string, reserved bool, err error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Release(ctx context.Context, userID, key string) error
}

// Deps holds the collaborators of Service.
type Deps struct {
	Orders    Repository
	Carts     Carts
	Catalog   catalog.Repository
	Addresses address.Store
	Coupons   Coupons
	Shipping  Quoter
	Payments  payment.Gateway
	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency Idempotency

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Config holds tunables of Service.
type Config struct {
	// PaymentTimeout bounds a single charge. A charge that times out counts
	// as a failed payment.
	PaymentTimeout time.Duration
}

// CheckoutRequest is the input of Checkout.
type CheckoutRequest struct {
	UserID         string
	AddressID      string
	DeliveryMethod shipping.Method
	CouponCode     string
	IdempotencyKey string
}

// PaymentOutcome reports a charge attempt. A failed payment is data, not an
// error: the order stays in place with PaymentStatus=failed.
type PaymentOutcome struct {
	OrderID       string
	Success       bool
	Status        PaymentStatus
	Method        payment.Method
	TransactionID string
	Message       string
}

// Placement is the result of PlaceOrder.
type Placement struct {
	Order   *Order
	Payment *PaymentOutcome
}

// ReorderResult counts the lines a reorder put back in the cart.
type ReorderResult struct {
	AddedCount   int
	SkippedCount int
}

// Service runs the checkout pipeline and the order state transitions.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	tracer   trace.Tracer
	placed   metric.Int64Counter
	payments metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Second
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = tracenoop.NewTracerProvider()
	}
	if deps.MeterProvider == nil {
		deps.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := deps.MeterProvider.Meter("cupcake-checkout/order")
	placed, err := meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders committed by checkout"))
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	payments, err := meter.Int64Counter("checkout.payments",
		metric.WithDescription("Payment attempts by outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "create payments counter")
	}

	return &Service{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		tracer:   deps.TracerProvider.Tracer("cupcake-checkout/order"),
		placed:   placed,
		payments: payments,
	}, nil
}

// PlaceOrder checks out the user's cart and then attempts payment. A payment
// failure never undoes the order; it is reported in Placement.Payment.
// Replaying an Idempotency-Key returns the stored order and its recorded
// payment state without charging again; retries go through Pay.
func (s *Service) PlaceOrder(ctx context.Context, req CheckoutRequest, method payment.Method) (*Placement, error) {
	o, replayed, err := s.checkoutOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	if replayed {
		return &Placement{Order: o, Payment: outcomeFromOrder(o)}, nil
	}

	outcome, err := s.settle(ctx, o, method)
	if err != nil {
		zctx.From(ctx).Error("Payment settlement failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return &Placement{Order: o, Payment: &PaymentOutcome{
			OrderID: o.ID,
			Status:  o.PaymentStatus,
			Method:  method,
			Message: PaymentFailedMessage,
		}}, nil
	}
	return &Placement{Order: o, Payment: outcome}, nil
}

// Checkout turns the user's cart into a pending order. Stock, coupon
// redemption, order rows and the cart clear are committed as one unit by
// Repository.CreateWithItems.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	o, _, err := s.checkoutOnce(ctx, req)
	return o, err
}

// checkoutOnce runs checkout under the request's Idempotency-Key. replayed is
// true when the key was already used and o is the order it produced.
func (s *Service) checkoutOnce(ctx context.Context, req CheckoutRequest) (_ *Order, replayed bool, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.String("delivery_method", string(req.DeliveryMethod))))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "checkout failed")
		}
		span.SetAttributes(attribute.Bool("replayed", replayed))
		span.End()
	}()

	if req.IdempotencyKey == "" || s.deps.Idempotency == nil {
		o, err := s.checkout(ctx, req)
		return o, false, err
	}

	existing, reserved, err := s.deps.Idempotency.Reserve(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, false, errors.Wrap(err, "reserve idempotency key")
	}
	if !reserved {
		if existing == "" {
			return nil, false, apperr.Conflict("A checkout with this Idempotency-Key is already in progress")
		}
		o, err := s.Get(ctx, req.UserID, existing)
		if err != nil {
			return nil, false, err
		}
		return o, true, nil
	}

	o, err := s.checkout(ctx, req)
	lg := zctx.From(ctx)
	if err != nil {
		if relErr := s.deps.Idempotency.Release(ctx, req.UserID, req.IdempotencyKey); relErr != nil {
			lg.Warn("Failed to release idempotency key", zap.Error(relErr))
		}
		return nil, false, err
	}
	if compErr := s.deps.Idempotency.Complete(ctx, req.UserID, req.IdempotencyKey, o.ID); compErr != nil {
		lg.Warn("Failed to complete idempotency key", zap.String("order_id", o.ID), zap.Error(compErr))
	}
	return o, false, nil
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	snap, err := s.deps.Carts.Snapshot(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if snap.IsEmpty() {
		return nil, apperr.Validation("Cart is empty")
	}

	if err := stock.Validate(snap); err != nil {
		return nil, err
	}

	var addr *address.Address
	if req.DeliveryMethod != shipping.Pickup {
		if req.AddressID == "" {
			return nil, apperr.NotFound("Address", "")
		}
		addr, err = s.deps.Addresses.FindOwnedByID(ctx, req.UserID, req.AddressID)
		if err != nil {
			if errors.Is(err, address.ErrNotFound) {
				return nil, apperr.NotFound("Address", req.AddressID)
			}
			return nil, errors.Wrap(err, "find address")
		}
	}

	zip := ""
	if addr != nil {
		zip = addr.ZipCode
	}
	quote := s.deps.Shipping.Quote(ctx, zip, req.DeliveryMethod, snap.ItemsSubtotal())

	var c *coupon.Coupon
	if req.CouponCode != "" {
		c, err = s.deps.Coupons.Lookup(ctx, req.CouponCode)
		if err != nil {
			return nil, passClassified(err, "apply coupon")
		}
	}

	b := pricing.Compute(pricing.Input{Lines: snap.Lines, Shipping: quote.Cost, Coupon: c})

	now := s.now()
	o := &Order{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		DeliveryMethod: req.DeliveryMethod,
		ShippingCost:   b.ShippingCost,
		Subtotal:       b.Subtotal,
		Discount:       b.Discount,
		Total:          b.Total,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if addr != nil {
		o.AddressID = &addr.ID
	}
	if b.CouponApplied {
		o.CouponID = &c.ID
	}

	items := make([]Item, len(snap.Lines))
	for i, l := range snap.Lines {
		items[i] = Item{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			CupcakeID: l.CupcakeID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		}
	}

	created, err := s.deps.Orders.CreateWithItems(ctx, o, items)
	if err != nil {
		// Lost coupon or stock races surface as their classified errors.
		return nil, passClassified(err, "create order")
	}
	s.deps.Carts.Invalidate(ctx, req.UserID)

	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("delivery_method", string(req.DeliveryMethod)),
		attribute.Bool("coupon_applied", b.CouponApplied),
	))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.Stringer("total", created.Total),
		zap.Int("items", len(items)),
	)
	return created, nil
}

// Pay charges an existing order. Only unpaid, non-cancelled orders can be
// charged, and only one charge per order can be in flight.
func (s *Service) Pay(ctx context.Context, userID, orderID string, method payment.Method) (*PaymentOutcome, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := payable(o); err != nil {
		return nil, err
	}
	return s.settle(ctx, o, method)
}

func payable(o *Order) error {
	switch {
	case o.Status == StatusCancelled:
		return apperr.Validation("Cancelled orders cannot be paid")
	case o.PaymentStatus == PaymentPaid:
		return apperr.Conflict("Order is already paid")
	}
	return nil
}

// settle claims o for payment, charges it and records the result. Charge
// errors and timeouts are recorded as a failed payment.
func (s *Service) settle(ctx context.Context, o *Order, method payment.Method) (*PaymentOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "order.Pay", trace.WithAttributes(attribute.String("order_id", o.ID)))
	defer span.End()
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	// The claim outlives the charge timeout so a crashed attempt frees the
	// order eventually without overlapping a live one.
	err := s.deps.Orders.ClaimPayment(ctx, o.ID, s.cfg.PaymentTimeout+paymentClaimSlack)
	if errors.Is(err, ErrStatusConflict) {
		return nil, s.claimConflict(ctx, o)
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim payment")
	}

	update := PaymentUpdate{Method: method}
	outcome := &PaymentOutcome{OrderID: o.ID, Method: method}

	if o.Total.IsZero() {
		update.Status = PaymentPaid
		outcome.Message = "Nothing to charge"
	} else {
		chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		res, err := s.deps.Payments.Charge(chargeCtx, o.ID, o.Total, method)
		cancel()

		switch {
		case err != nil:
			lg.Warn("Payment charge failed", zap.Error(err))
			span.RecordError(err)
			update.Status = PaymentFailed
			outcome.Message = PaymentFailedMessage
		case !res.Success:
			lg.Info("Payment declined", zap.String("reason", res.Message))
			update.Status = PaymentFailed
			outcome.Message = PaymentFailedMessage
		default:
			update.Status = PaymentPaid
			update.TransactionID = res.TransactionID
			outcome.TransactionID = res.TransactionID
			outcome.Message = res.Message
		}
	}

	// The charge already happened; record it even if the caller went away.
	err = s.deps.Orders.SetPaymentResult(context.WithoutCancel(ctx), o.ID, update)
	if errors.Is(err, ErrStatusConflict) {
		span.SetStatus(codes.Error, "payment result rejected")
		lg.Error("Payment result not recorded: order changed during the charge",
			zap.String("payment_status", string(update.Status)),
			zap.String("transaction_id", update.TransactionID),
		)
		return nil, apperr.Conflict("Order changed while the payment was processed")
	}
	if err != nil {
		span.SetStatus(codes.Error, "record payment failed")
		return nil, errors.Wrap(err, "set payment result")
	}

	o.PaymentStatus = update.Status
	o.PaymentMethod = &update.Method
	if update.TransactionID != "" {
		o.TransactionID = &update.TransactionID
	}

	outcome.Status = update.Status
	outcome.Success = update.Status == PaymentPaid
	s.payments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(update.Status)),
		attribute.String("method", string(method)),
	))
	return outcome, nil
}

// claimConflict explains why o could not be claimed for payment.
func (s *Service) claimConflict(ctx context.Context, o *Order) error {
	current, err := s.Get(ctx, o.UserID, o.ID)
	if err != nil {
		return err
	}
	if err := payable(current); err != nil {
		return err
	}
	return apperr.Conflict("A payment for this order is already in progress")
}

// Cancel moves a pending or processing order to cancelled. Stock is not
// restored.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) error {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if !o.Status.Cancellable() {
		return notCancellable(o.Status)
	}

	err = s.deps.Orders.UpdateStatus(ctx, o.ID, StatusCancelled, cancellable...)
	if errors.Is(err, ErrStatusConflict) {
		current, getErr := s.Get(ctx, userID, orderID)
		if getErr != nil {
			return getErr
		}
		if current.Status.Cancellable() {
			return apperr.Conflict("Order payment is in progress, try again shortly")
		}
		return notCancellable(current.Status)
	}
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}

	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", o.ID))
	return nil
}

func notCancellable(s Status) error {
	return apperr.Validationf("Order cannot be cancelled. Current status: %s", s)
}

// Reorder puts the items of a past order back in the user's cart, capped by
// current stock. Unavailable items are skipped; the operation only fails when
// the order itself cannot be found.
func (s *Service) Reorder(ctx context.Context, userID, orderID string) (*ReorderResult, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	res := &ReorderResult{}
	for _, it := range o.Items {
		c, err := s.deps.Catalog.GetByID(ctx, it.CupcakeID)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				lg.Warn("Reorder lookup failed", zap.String("cupcake_id", it.CupcakeID), zap.Error(err))
			}
			res.SkippedCount++
			continue
		}
		if !c.Available() {
			res.SkippedCount++
			continue
		}

		qty := min(it.Quantity, c.Stock)
		if err := s.deps.Carts.AddItem(ctx, userID, it.CupcakeID, qty); err != nil {
			lg.Debug("Reorder item skipped", zap.String("cupcake_id", it.CupcakeID), zap.Error(err))
			res.SkippedCount++
			continue
		}
		res.AddedCount++
	}
	return res, nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Order", orderID)
		}
		return nil, errors.Wrap(err, "find order")
	}
	if o.UserID != userID {
		return nil, apperr.NotFound("Order", orderID)
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.deps.Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// passClassified returns user-facing errors untouched so their message reaches
// the client, and wraps everything else.
func passClassified(err error, msg string) error {
	if apperr.Code(err) != "INTERNAL_ERROR" {
		return err
	}
	return errors.Wrap(err, msg)
}

func outcomeFromOrder(o *Order) *PaymentOutcome {
	out := &PaymentOutcome{
		OrderID: o.ID,
		Status:  o.PaymentStatus,
		Success: o.PaymentStatus == PaymentPaid,
	}
	switch o.PaymentStatus {
	case PaymentFailed:
		out.Message = PaymentFailedMessage
	case PaymentPending:
		out.Message = "Payment is being processed"
	}
	if o.PaymentMethod != nil {
		out.Method = *o.PaymentMethod
	}
	if o.TransactionID != nil {
		out.TransactionID = *o.TransactionID
	}
	return out
}
