package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlush(t *testing.T) {
	src := &mockSource{pending: []Event{
		{ID: 1, Aggregate: "o1", Type: OrderCreated, Payload: []byte(`{}`)},
		{ID: 2, Aggregate: "o1", Type: OrderPaymentPaid, Payload: []byte(`{}`)},
	}}
	w := &mockWriter{}
	reg := prometheus.NewRegistry()
	r, err := NewRelay(src, w, RelayConfig{BatchSize: 10}, reg)
	require.NoError(t, err)

	n, err := r.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, src.sent)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "o1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[1].Headers[0].Key)
	assert.Equal(t, "order.payment_paid", string(w.msgs[1].Headers[0].Value))
	assert.InDelta(t, 2, testutil.ToFloat64(r.published), 0)
}

func TestFlush_WriteFailureKeepsEventsPending(t *testing.T) {
	src := &mockSource{pending: []Event{{ID: 7, Aggregate: "o1", Type: OrderCancelled}}}
	w := &mockWriter{err: errors.New("broker unavailable")}
	r, err := NewRelay(src, w, RelayConfig{}, nil)
	require.NoError(t, err)

	_, err = r.Flush(context.Background())
	require.Error(t, err)
	assert.Empty(t, src.sent)
	assert.InDelta(t, 1, testutil.ToFloat64(r.failures), 0)
}

func TestFlush_Empty(t *testing.T) {
	w := &mockWriter{}
	r, err := NewRelay(&mockSource{}, w, RelayConfig{}, nil)
	require.NoError(t, err)

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, w.calls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &mockSource{pending: []Event{{ID: 1, Aggregate: "o1", Type: OrderCreated}}}
	w := &mockWriter{}
	r, err := NewRelay(src, w, RelayConfig{PollInterval: 5 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return src.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNewRelay_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRelay(&mockSource{}, &mockWriter{}, RelayConfig{}, reg)
	require.NoError(t, err)

	_, err = NewRelay(&mockSource{}, &mockWriter{}, RelayConfig{}, reg)
	require.Error(t, err)
}

// --- Mock implementations ---

type mockSource struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
}

func (m *mockSource) FetchPending(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *mockSource) MarkSent(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, ids...)
	m.pending = m.pending[len(ids):]
	return nil
}

func (m *mockSource) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockWriter struct {
	msgs  []kafka.Message
	err   error
	calls int
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}
