// Package handler exposes the checkout pipeline over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
	"github.com/xenking/cupcake-checkout/internal/domain/order"
	"github.com/xenking/cupcake-checkout/internal/domain/payment"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

// Carts is the cart service as seen by the cart endpoints.
type Carts interface {
	View(ctx context.Context, userID string) (*cart.Snapshot, error)
	AddItem(ctx context.Context, userID, cupcakeID string, quantity int) error
	UpdateQuantity(ctx context.Context, userID, cupcakeID string, quantity int) error
	RemoveItem(ctx context.Context, userID, cupcakeID string) error
	Clear(ctx context.Context, userID string) error
}

// Orders is the order service as seen by the order endpoints.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.CheckoutRequest, method payment.Method) (*order.Placement, error)
	Pay(ctx context.Context, userID, orderID string, method payment.Method) (*order.PaymentOutcome, error)
	Cancel(ctx context.Context, userID, orderID string) error
	Reorder(ctx context.Context, userID, orderID string) (*order.ReorderResult, error)
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
	List(ctx context.Context, userID string) ([]order.Order, error)
}

type Coupons interface {
	Lookup(ctx context.Context, code string) (*coupon.Coupon, error)
}

type Quoter interface {
	Quote(ctx context.Context, zipCode string, method shipping.Method, orderValue decimal.Decimal) shipping.Quote
}

// Deps holds the services behind the API.
type Deps struct {
	Carts    Carts
	Orders   Orders
	Coupons  Coupons
	Shipping Quoter
}

// Handler serves the /api routes.
type Handler struct {
	deps     Deps
	secret   []byte
	validate *validator.Validate
}

// New creates a Handler. secret keys the X-User-Signature HMAC.
func New(deps Deps, secret []byte) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{deps: deps, secret: secret, validate: v}
}

// Mount registers every authenticated route under /api.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(h.secret))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Patch("/items/{cupcakeID}", h.updateCartItem)
			r.Delete("/items/{cupcakeID}", h.removeCartItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Post("/cancel", h.cancelOrder)
				r.Post("/reorder", h.reorder)
				r.Post("/payment", h.retryPayment)
			})
		})

		r.Post("/coupons/validate", h.validateCoupon)
		r.Get("/shipping/quote", h.quoteShipping)
	})
}

// pathID reads a UUID path parameter.
func (h *Handler) pathID(r *http.Request, name, label string) (string, error) {
	id := chi.URLParam(r, name)
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		return "", invalidf("%s must be a valid UUID", label)
	}
	return id, nil
}
