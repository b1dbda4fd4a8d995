package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
	"github.com/xenking/cupcake-checkout/internal/domain/order"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

func writeJSON(w http.ResponseWriter, status int, body func(e *jx.Encoder)) {
	var e jx.Encoder
	body(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	e.Str(d.StringFixed(2))
}

func optMoney(e *jx.Encoder, name string, d *decimal.Decimal) {
	if d == nil {
		e.FieldStart(name)
		e.Null()
		return
	}
	money(e, name, *d)
}

func optStr(e *jx.Encoder, name string, s *string) {
	e.FieldStart(name)
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

func str(e *jx.Encoder, name, s string) {
	e.FieldStart(name)
	e.Str(s)
}

func num(e *jx.Encoder, name string, n int) {
	e.FieldStart(name)
	e.Int(n)
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeCart(e *jx.Encoder, s *cart.Snapshot) {
	e.ObjStart()
	str(e, "userId", s.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range s.Lines {
		e.ObjStart()
		str(e, "cupcakeId", l.CupcakeID)
		str(e, "name", l.Name)
		num(e, "quantity", l.Quantity)
		money(e, "unitPrice", l.UnitPrice)
		money(e, "total", l.Total())
		num(e, "availableStock", l.AvailableStock)
		e.ObjEnd()
	}
	e.ArrEnd()
	num(e, "itemCount", len(s.Lines))
	money(e, "itemsSubtotal", s.ItemsSubtotal())
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	str(e, "id", o.ID)
	str(e, "userId", o.UserID)
	optStr(e, "addressId", o.AddressID)
	str(e, "deliveryMethod", string(o.DeliveryMethod))
	optStr(e, "couponId", o.CouponID)
	money(e, "shippingCost", o.ShippingCost)
	money(e, "subtotal", o.Subtotal)
	money(e, "discount", o.Discount)
	money(e, "total", o.Total)
	str(e, "status", string(o.Status))
	str(e, "paymentStatus", string(o.PaymentStatus))
	e.FieldStart("paymentMethod")
	if o.PaymentMethod != nil {
		e.Str(string(*o.PaymentMethod))
	} else {
		e.Null()
	}
	optStr(e, "transactionId", o.TransactionID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		str(e, "id", it.ID)
		str(e, "cupcakeId", it.CupcakeID)
		str(e, "name", it.Name)
		num(e, "quantity", it.Quantity)
		money(e, "price", it.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	timestamp(e, "createdAt", o.CreatedAt)
	timestamp(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p *order.PaymentOutcome) {
	e.ObjStart()
	str(e, "orderId", p.OrderID)
	e.FieldStart("success")
	e.Bool(p.Success)
	str(e, "status", string(p.Status))
	str(e, "method", string(p.Method))
	if p.TransactionID != "" {
		str(e, "transactionId", p.TransactionID)
	}
	if p.Message != "" {
		str(e, "message", p.Message)
	}
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	str(e, "id", c.ID)
	str(e, "code", c.Code)
	str(e, "type", string(c.DiscountType))
	money(e, "value", c.Value)
	optMoney(e, "minPurchase", c.MinPurchase)
	optMoney(e, "maxDiscount", c.MaxDiscount)
	if c.ExpiresAt != nil {
		timestamp(e, "expiresAt", *c.ExpiresAt)
	}
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q shipping.Quote) {
	e.ObjStart()
	str(e, "method", string(q.Method))
	money(e, "cost", q.Cost)
	num(e, "estimatedDays", q.EstimatedDays)
	str(e, "label", q.Label)
	str(e, "description", q.Description)
	e.ObjEnd()
}
