package carrier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCarrier struct {
	viaCEP      string
	quote       string
	quoteStatus int
	lookups     atomic.Int32
	quotes      atomic.Int32
	lastQuote   atomic.Value
}

func (f *fakeCarrier) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{zip}/json/", func(w http.ResponseWriter, r *http.Request) {
		f.lookups.Add(1)
		_, _ = io.WriteString(w, f.viaCEP)
	})
	mux.HandleFunc("POST /quote", func(w http.ResponseWriter, r *http.Request) {
		f.quotes.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.lastQuote.Store(string(body))
		if f.quoteStatus != 0 {
			w.WriteHeader(f.quoteStatus)
			return
		}
		_, _ = io.WriteString(w, f.quote)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeCarrier) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{
		ViaCEPURL:       srv.URL + "/ws",
		QuoteURL:        srv.URL + "/quote",
		OriginZip:       "01310-100",
		Timeout:         time.Second,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestStandardRate(t *testing.T) {
	f := &fakeCarrier{
		viaCEP: `{"cep":"20040-020","uf":"RJ","localidade":"Rio de Janeiro"}`,
		quote:  `{"precos":[{"servico":"04014","valor":"23,45"},{"valor":"99,00"}]}`,
	}
	c := newTestClient(t, f)

	rate, err := c.StandardRate(context.Background(), "20040020", decimal.RequireFromString("50"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("23.45").Equal(rate), "got %s", rate)

	sent, _ := f.lastQuote.Load().(string)
	fields := map[string]string{}
	require.NoError(t, jx.DecodeStr(sent).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		fields[key] = v
		return err
	}))
	assert.Equal(t, "01310100", fields["cepOrigem"])
	assert.Equal(t, "20040020", fields["cepDestino"])
}

func TestStandardRate_UnknownZip(t *testing.T) {
	for _, body := range []string{`{"erro":true}`, `{"erro":"true"}`} {
		t.Run(body, func(t *testing.T) {
			f := &fakeCarrier{viaCEP: body}
			c := newTestClient(t, f)

			for range 3 {
				_, err := c.StandardRate(context.Background(), "99999999", decimal.NewFromInt(10))
				require.ErrorIs(t, err, ErrUnknownZip)
			}
			assert.Zero(t, f.quotes.Load())
			assert.Equal(t, gobreaker.StateClosed, c.State(), "unknown zips must not trip the breaker")
		})
	}
}

func TestStandardRate_BreakerOpens(t *testing.T) {
	f := &fakeCarrier{viaCEP: `{"uf":"SP"}`, quoteStatus: http.StatusServiceUnavailable}
	c := newTestClient(t, f)
	ctx := context.Background()

	for range 2 {
		_, err := c.StandardRate(ctx, "01001000", decimal.NewFromInt(10))
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.StandardRate(ctx, "01001000", decimal.NewFromInt(10))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), f.quotes.Load(), "open breaker must short-circuit")
}

func TestDecodePrice(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "comma", body: `{"precos":[{"valor":"12,30"}]}`, want: "12.30"},
		{name: "dot", body: `{"precos":[{"valor":"7.5"}]}`, want: "7.5"},
		{name: "empty list", body: `{"precos":[]}`, wantErr: true},
		{name: "not a number", body: `{"precos":[{"valor":"n/a"}]}`, wantErr: true},
		{name: "garbage", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePrice([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got))
		})
	}
}

func TestNew_InvalidOrigin(t *testing.T) {
	_, err := New(Config{OriginZip: strings.Repeat("1", 5)}, nil)
	require.Error(t, err)
}
