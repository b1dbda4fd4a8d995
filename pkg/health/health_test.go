package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func passing() CheckFunc { return func(context.Context) error { return nil } }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type body struct {
	Status string
	Checks map[string]string
}

func decode(t *testing.T, w *httptest.ResponseRecorder) body {
	t.Helper()
	var b body
	d := jx.DecodeBytes(w.Body.Bytes())
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			b.Status = s
			return err
		case "checks":
			b.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				msg, err := d.Str()
				b.Checks[name] = msg
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return b
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

// runN drives the i-th registered check n times.
func runN(h *Health, i, n int) {
	for range n {
		h.checks[i].run(context.Background(), h.lg)
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		runs       int
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "no checks", wantStatus: http.StatusOK},
		{
			name:       "all passing",
			checks:     map[string]CheckFunc{"goroutines": passing()},
			runs:       3,
			wantStatus: http.StatusOK,
		},
		{
			name:       "failing below threshold",
			checks:     map[string]CheckFunc{"gc": failing("pause")},
			runs:       2,
			wantStatus: http.StatusOK,
		},
		{
			name:       "failing at threshold",
			checks:     map[string]CheckFunc{"gc": failing("pause")},
			runs:       3,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"gc": "pause"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(nil)
			for name, fn := range tt.checks {
				h.Add(Liveness, name, time.Second, fn)
			}
			for i := range h.checks {
				runN(h, i, tt.runs)
			}

			w := serve(h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			b := decode(t, w)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", b.Status)
				assert.Empty(t, b.Checks)
			} else {
				assert.Equal(t, "unhealthy", b.Status)
				assert.Equal(t, tt.wantChecks, b.Checks)
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New(nil)
	h.Add(Readiness, "postgres", time.Second, passing())
	h.Add(Readiness, "redis", time.Second, failing("connection refused"))
	h.Add(Liveness, "goroutines", time.Second, failing("too many"))

	b := decode(t, serve(h.ReadyEndpoint))
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, b.Checks)

	h.SetReady(true)
	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.IsReady())

	runN(h, 1, 3)
	runN(h, 2, 3)
	w = serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, decode(t, w).Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	assert.Contains(t, decode(t, serve(h.ReadyEndpoint)).Checks, "_readiness")
}

func TestCheck_RecoveryAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	down := true
	h := New(zap.New(core))
	h.Add(Readiness, "postgres", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	c := h.checks[0]

	runN(h, 0, 1)
	assert.True(t, c.healthy.Load())
	runN(h, 0, 1)
	assert.False(t, c.healthy.Load())
	require.Equal(t, 1, logs.FilterMessage("Health check failing").Len())

	down = false
	runN(h, 0, 1)
	assert.False(t, c.healthy.Load(), "one success is below the recovery threshold")
	runN(h, 0, 1)
	assert.True(t, c.healthy.Load())
	assert.Equal(t, 1, logs.FilterMessage("Health check recovered").Len())
}

func TestWithThresholds_Floor(t *testing.T) {
	h := New(nil)
	h.Add(Liveness, "x", time.Second, passing(), WithThresholds(0, -1))
	assert.Equal(t, 1, h.checks[0].failAfter)
	assert.Equal(t, 1, h.checks[0].recoverAfter)
}

func TestCheck_Timeout(t *testing.T) {
	h := New(nil)
	h.Add(Readiness, "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithThresholds(1, 1))
	runN(h, 0, 1)

	msg, failed := h.checks[0].failure()
	assert.True(t, failed)
	assert.Equal(t, context.DeadlineExceeded.Error(), msg)
}

func TestStartStop_Concurrent(t *testing.T) {
	h := New(nil)
	h.Add(Liveness, "flaky", time.Second, failing("err"))
	h.Add(Readiness, "db", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				h.IsReady()
				serve(h.LiveEndpoint)
				serve(h.ReadyEndpoint)
			}
		})
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return serve(h.LiveEndpoint).Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "limit 0")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))

	assert.NoError(t, PingCheck("postgres", pinger{})(ctx))
	err := PingCheck("redis", pinger{err: errors.New("refused")})(ctx)
	assert.EqualError(t, err, "ping redis: refused")
}
