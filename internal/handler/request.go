package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
)

const maxBodyBytes = 1 << 20

type addItemRequest struct {
	CupcakeID string `json:"cupcakeId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type placeOrderRequest struct {
	AddressID      string `json:"addressId" validate:"omitempty,uuid"`
	DeliveryMethod string `json:"deliveryMethod" validate:"omitempty,oneof=standard express pickup"`
	CouponCode     string `json:"couponCode" validate:"omitempty,max=50"`
	PaymentMethod  string `json:"paymentMethod" validate:"omitempty,oneof=card pix"`
}

type paymentRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=card pix"`
}

type validateCouponRequest struct {
	Code string `json:"code" validate:"required,min=1,max=50"`
}

type quoteQuery struct {
	Zip    string `json:"zip" validate:"omitempty,max=16"`
	Method string `json:"method" validate:"omitempty,oneof=standard express pickup"`
	Value  string `json:"value" validate:"required"`
}

// decode reads a JSON body into dst and validates it. An empty body decodes
// to the zero value, which suits requests whose fields are all optional.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalidf("Request body is too large")
		}
		return invalidf("Invalid JSON body")
	}
	return h.check(dst)
}

func (h *Handler) check(v any) error {
	if err := h.validate.Struct(v); err != nil {
		return invalidf("%s", describe(err))
	}
	return nil
}
