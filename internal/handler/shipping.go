package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

func (h *Handler) quoteShipping(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := quoteQuery{Zip: q.Get("zip"), Method: q.Get("method"), Value: q.Get("value")}
	if err := h.check(&query); err != nil {
		fail(w, r, err)
		return
	}
	value, err := decimal.NewFromString(query.Value)
	if err != nil || value.IsNegative() {
		fail(w, r, invalidf("value must be a non-negative amount"))
		return
	}
	method, _ := shipping.ParseMethod(query.Method)

	quote := h.deps.Shipping.Quote(r.Context(), query.Zip, method, value.Round(2))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, quote) })
}
