// Package carrier prices standard deliveries through the postal carrier.
//
// A quote takes two calls: a ViaCEP lookup that confirms the destination
// postal code exists, then the carrier's price request. Both run behind one
// circuit breaker so a failing carrier is skipped quickly and the shipping
// estimator falls back to its flat rate.
package carrier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

// ErrUnknownZip is returned when ViaCEP does not know the postal code.
var ErrUnknownZip = errors.New("unknown zip code")

// Parcel dimensions of a standard cupcake box.
const (
	parcelWeightKg = 0.5
	parcelLengthCm = 20
	parcelWidthCm  = 20
	parcelHeightCm = 10
	serviceCode    = "04014"
)

// Config configures Client.
type Config struct {
	ViaCEPURL string
	QuoteURL  string
	OriginZip string
	Timeout   time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

var _ shipping.RateLookup = (*Client)(nil)

// Client implements shipping.RateLookup.
type Client struct {
	cfg    Config
	http   *http.Client
	origin string
	cb     *gobreaker.CircuitBreaker[decimal.Decimal]
}

// New creates a Client. The HTTP transport is instrumented with otelhttp.
// Breaker state changes are logged to lg.
func New(cfg Config, lg *zap.Logger) (*Client, error) {
	origin, err := shipping.NormalizeZip(cfg.OriginZip)
	if err != nil {
		return nil, errors.Wrap(err, "origin zip")
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		origin: origin,
	}
	c.cb = gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
		Name:        "carrier",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A postal code the carrier does not serve says nothing about its health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnknownZip)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return c, nil
}

// StandardRate returns the carrier's price for a standard parcel to zip.
// zip must already be normalized to 8 digits.
func (c *Client) StandardRate(ctx context.Context, zip string, orderValue decimal.Decimal) (decimal.Decimal, error) {
	return c.cb.Execute(func() (decimal.Decimal, error) {
		if err := c.lookupZip(ctx, zip); err != nil {
			return decimal.Zero, err
		}
		return c.quote(ctx, zip, orderValue)
	})
}

// State reports the breaker state, for readiness and debugging.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}

func (c *Client) lookupZip(ctx context.Context, zip string) error {
	url := fmt.Sprintf("%s/%s/json/", strings.TrimRight(c.cfg.ViaCEPURL, "/"), zip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "build viacep request")
	}

	body, err := c.do(req)
	if err != nil {
		return errors.Wrap(err, "viacep")
	}

	unknown := false
	err = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "erro" {
			return d.Skip()
		}
		// ViaCEP has answered both true and "true" over time.
		switch d.Next() {
		case jx.Bool:
			v, err := d.Bool()
			unknown = v
			return err
		case jx.String:
			v, err := d.Str()
			unknown = v == "true"
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return errors.Wrap(err, "decode viacep response")
	}
	if unknown {
		return ErrUnknownZip
	}
	return nil
}

func (c *Client) quote(ctx context.Context, zip string, orderValue decimal.Decimal) (decimal.Decimal, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("cepOrigem")
	e.Str(c.origin)
	e.FieldStart("cepDestino")
	e.Str(zip)
	e.FieldStart("peso")
	e.Float64(parcelWeightKg)
	e.FieldStart("comprimento")
	e.Int(parcelLengthCm)
	e.FieldStart("largura")
	e.Int(parcelWidthCm)
	e.FieldStart("altura")
	e.Int(parcelHeightCm)
	e.FieldStart("valorDeclarado")
	e.Float64(orderValue.InexactFloat64())
	e.FieldStart("servicos")
	e.ArrStart()
	e.Str(serviceCode)
	e.ArrEnd()
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.QuoteURL, bytes.NewReader(e.Bytes()))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "build quote request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "carrier quote")
	}

	price, err := decodePrice(body)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "decode quote response")
	}
	return price, nil
}

// decodePrice reads precos[0].valor, a decimal string that may use a comma
// separator.
func decodePrice(body []byte) (decimal.Decimal, error) {
	var (
		raw   string
		found bool
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "precos" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			if found {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "valor" {
					return d.Skip()
				}
				v, err := d.Str()
				if err != nil {
					return err
				}
				raw, found = v, true
				return nil
			})
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, errors.New("no price in response")
	}
	return decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
