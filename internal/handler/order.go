package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/cupcake-checkout/internal/domain/order"
	"github.com/xenking/cupcake-checkout/internal/domain/payment"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

// IdempotencyKeyHeader lets clients retry checkout safely.
const IdempotencyKeyHeader = "Idempotency-Key"

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if err := h.validate.Var(key, "omitempty,max=255,printascii"); err != nil {
		fail(w, r, invalidf("%s must be at most 255 printable characters", IdempotencyKeyHeader))
		return
	}

	// Both values are already constrained by the validator tags.
	method, _ := shipping.ParseMethod(req.DeliveryMethod)
	pm, _ := payment.ParseMethod(req.PaymentMethod)

	placed, err := h.deps.Orders.PlaceOrder(r.Context(), order.CheckoutRequest{
		UserID:         UserID(r.Context()),
		AddressID:      req.AddressID,
		DeliveryMethod: method,
		CouponCode:     req.CouponCode,
		IdempotencyKey: key,
	}, pm)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, placed.Order)
		e.FieldStart("payment")
		encodePayment(e, placed.Payment)
		e.ObjEnd()
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.List(r.Context(), UserID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "orderID", "orderId")
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.deps.Orders.Get(r.Context(), UserID(r.Context()), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "orderID", "orderId")
	if err != nil {
		fail(w, r, err)
		return
	}
	userID := UserID(r.Context())
	if err := h.deps.Orders.Cancel(r.Context(), userID, id); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.deps.Orders.Get(r.Context(), userID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "orderID", "orderId")
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.deps.Orders.Reorder(r.Context(), UserID(r.Context()), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		num(e, "addedCount", res.AddedCount)
		num(e, "skippedCount", res.SkippedCount)
		e.ObjEnd()
	})
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "orderID", "orderId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req paymentRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	pm, _ := payment.ParseMethod(req.PaymentMethod)

	outcome, err := h.deps.Orders.Pay(r.Context(), UserID(r.Context()), id, pm)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, outcome) })
}
