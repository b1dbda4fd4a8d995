package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// validateCoupon reports whether a code is currently redeemable. Unknown,
// expired and exhausted codes come back as errors, not as valid=false.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.deps.Coupons.Lookup(r.Context(), req.Code)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("coupon")
		encodeCoupon(e, c)
		e.ObjEnd()
	})
}
