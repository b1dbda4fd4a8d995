package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.renderCart(w, r, http.StatusOK)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.deps.Carts.AddItem(r.Context(), UserID(r.Context()), req.CupcakeID, req.Quantity); err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, http.StatusCreated)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	cupcakeID, err := h.pathID(r, "cupcakeID", "cupcakeId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req updateItemRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.deps.Carts.UpdateQuantity(r.Context(), UserID(r.Context()), cupcakeID, req.Quantity); err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, http.StatusOK)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	cupcakeID, err := h.pathID(r, "cupcakeID", "cupcakeId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.deps.Carts.RemoveItem(r.Context(), UserID(r.Context()), cupcakeID); err != nil {
		fail(w, r, err)
		return
	}
	h.renderCart(w, r, http.StatusOK)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Carts.Clear(r.Context(), UserID(r.Context())); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renderCart(w http.ResponseWriter, r *http.Request, status int) {
	snap, err := h.deps.Carts.View(r.Context(), UserID(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeCart(e, snap) })
}
