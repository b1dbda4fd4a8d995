// Package outbox carries order state changes from Postgres to Kafka.
//
// Events are written to the outbox table in the same transaction as the state
// change they describe. Relay later publishes them and marks them sent, so a
// crash between commit and publish delays an event but never loses it.
package outbox

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/cupcake-checkout/internal/domain/order"
)

// EventType names an order event.
type EventType string

const (
	OrderCreated       EventType = "order.created"
	OrderPaymentPaid   EventType = "order.payment_paid"
	OrderPaymentFailed EventType = "order.payment_failed"
	OrderCancelled     EventType = "order.cancelled"
)

// StatusEvent returns the event type for an order moving to status s.
func StatusEvent(s order.Status) EventType {
	return EventType("order." + string(s))
}

// PaymentEvent returns the event type for a recorded payment outcome.
func PaymentEvent(s order.PaymentStatus) EventType {
	return EventType("order.payment_" + string(s))
}

// Event is an outbox row.
type Event struct {
	ID        int64
	Aggregate string
	Type      EventType
	Payload   []byte
	CreatedAt time.Time
}

// NewOrderEvent builds the event describing o after a change of type t.
func NewOrderEvent(t EventType, o *order.Order) Event {
	return Event{
		Aggregate: o.ID,
		Type:      t,
		Payload:   EncodeOrder(t, o),
	}
}

// EncodeOrder renders the JSON payload of an order event. Money is encoded as
// strings with two decimals.
func EncodeOrder(t EventType, o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("type")
	e.Str(string(t))
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("deliveryMethod")
	e.Str(string(o.DeliveryMethod))
	if o.CouponID != nil {
		e.FieldStart("couponId")
		e.Str(*o.CouponID)
	}
	if o.TransactionID != nil {
		e.FieldStart("transactionId")
		e.Str(*o.TransactionID)
	}
	e.FieldStart("shippingCost")
	e.Str(o.ShippingCost.StringFixed(2))
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("discount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))

	if len(o.Items) > 0 {
		e.FieldStart("items")
		e.ArrStart()
		for _, it := range o.Items {
			e.ObjStart()
			e.FieldStart("cupcakeId")
			e.Str(it.CupcakeID)
			e.FieldStart("name")
			e.Str(it.Name)
			e.FieldStart("quantity")
			e.Int(it.Quantity)
			e.FieldStart("price")
			e.Str(it.Price.StringFixed(2))
			e.ObjEnd()
		}
		e.ArrEnd()
	}

	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}
