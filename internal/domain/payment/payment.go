// Package payment defines the contract of the payment provider that settles
// an order after it has been placed.
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
)

// Method is how the customer pays.
type Method string

const (
	Card Method = "card"
	Pix  Method = "pix"
)

// ParseMethod maps user input to a Method. An empty string means Card.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return Card, nil
	case Card, Pix:
		return m, nil
	default:
		return "", apperr.Validationf("Unknown payment method %q", s)
	}
}

// Result is the provider's answer to a charge.
type Result struct {
	Success       bool
	Method        Method
	TransactionID string
	Message       string
}

// Gateway charges an order. A declined charge is reported as a Result with
// Success=false; transport failures and timeouts are returned as errors.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, method Method) (*Result, error)
}
