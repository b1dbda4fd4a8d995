// Package shipping quotes delivery cost and ETA for a checkout.
package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
)

// Method is a delivery option chosen at checkout.
type Method string

const (
	Standard Method = "standard"
	Express  Method = "express"
	Pickup   Method = "pickup"
)

// ParseMethod maps user input to a Method. An empty string means Standard.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return Standard, nil
	case Standard, Express, Pickup:
		return m, nil
	default:
		return "", apperr.Validationf("Unknown delivery method %q", s)
	}
}

// Label returns the display name of the method.
func (m Method) Label() string {
	switch m {
	case Standard:
		return "Standard delivery"
	case Express:
		return "Express delivery"
	case Pickup:
		return "Store pickup"
	default:
		return "Delivery"
	}
}

// Description returns the customer-facing ETA window.
func (m Method) Description() string {
	switch m {
	case Standard:
		return "5-7 business days"
	case Express:
		return "2-3 business days"
	case Pickup:
		return "Ready within 1 business day"
	default:
		return ""
	}
}

// Quote is the transient shipping price for one checkout.
type Quote struct {
	Method        Method
	Cost          decimal.Decimal
	EstimatedDays int
	Label         string
	Description   string
}

// Policy holds the shipping business rules.
type Policy struct {
	FreeThreshold        decimal.Decimal
	ExpressCost          decimal.Decimal
	ExpressDays          int
	StandardFallbackCost decimal.Decimal
	StandardDays         int
	PickupDays           int
}

// DefaultPolicy returns the storefront's standard shipping rules.
func DefaultPolicy() Policy {
	return Policy{
		FreeThreshold:        decimal.NewFromInt(100),
		ExpressCost:          decimal.NewFromInt(15),
		ExpressDays:          3,
		StandardFallbackCost: decimal.Zero,
		StandardDays:         7,
		PickupDays:           0,
	}
}

// RateLookup prices a standard parcel to a destination postal code.
type RateLookup interface {
	StandardRate(ctx context.Context, zipCode string, orderValue decimal.Decimal) (decimal.Decimal, error)
}

// Estimator produces quotes. It never fails: an unavailable rate lookup
// degrades to Policy.StandardFallbackCost.
type Estimator struct {
	policy Policy
	rates  RateLookup
}

// NewEstimator creates an Estimator. rates may be nil, in which case standard
// deliveries below the free threshold use the fallback cost.
func NewEstimator(policy Policy, rates RateLookup) *Estimator {
	return &Estimator{policy: policy, rates: rates}
}

// Quote prices delivery of an order worth orderValue to zipCode.
func (e *Estimator) Quote(ctx context.Context, zipCode string, method Method, orderValue decimal.Decimal) Quote {
	switch method {
	case Pickup:
		return newQuote(Pickup, decimal.Zero, e.policy.PickupDays)
	case Express:
		return newQuote(Express, e.policy.ExpressCost, e.policy.ExpressDays)
	}

	if orderValue.GreaterThanOrEqual(e.policy.FreeThreshold) {
		return newQuote(Standard, decimal.Zero, e.policy.StandardDays)
	}

	cost, err := e.standardRate(ctx, zipCode, orderValue)
	if err != nil {
		zctx.From(ctx).Warn("Shipping rate lookup failed, using fallback cost",
			zap.String("zip_code", zipCode),
			zap.Stringer("fallback_cost", e.policy.StandardFallbackCost),
			zap.Error(err),
		)
		cost = e.policy.StandardFallbackCost
	}
	return newQuote(Standard, cost, e.policy.StandardDays)
}

func (e *Estimator) standardRate(ctx context.Context, zipCode string, orderValue decimal.Decimal) (decimal.Decimal, error) {
	if e.rates == nil {
		return e.policy.StandardFallbackCost, nil
	}
	zip, err := NormalizeZip(zipCode)
	if err != nil {
		return decimal.Zero, err
	}
	cost, err := e.rates.StandardRate(ctx, zip, orderValue)
	if err != nil {
		return decimal.Zero, err
	}
	if cost.IsNegative() {
		return decimal.Zero, errors.Errorf("negative shipping rate %s", cost)
	}
	return cost.Round(2), nil
}

func newQuote(m Method, cost decimal.Decimal, days int) Quote {
	return Quote{
		Method:        m,
		Cost:          cost.Round(2),
		EstimatedDays: days,
		Label:         m.Label(),
		Description:   m.Description(),
	}
}
