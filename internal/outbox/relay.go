package outbox

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Source reads pending events and acknowledges published ones.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
}

// Writer publishes messages. *kafka.Writer satisfies it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RelayConfig configures Relay.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay polls the outbox and publishes pending events in id order.
type Relay struct {
	src Source
	w   Writer
	cfg RelayConfig

	published prometheus.Counter
	failures  prometheus.Counter
}

// NewRelay creates a Relay and registers its counters with reg. A nil reg
// skips registration.
func NewRelay(src Source, w Writer, cfg RelayConfig, reg prometheus.Registerer) (*Relay, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	r := &Relay{
		src: src,
		w:   w,
		cfg: cfg,
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events published to Kafka.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.published, r.failures} {
			if err := reg.Register(c); err != nil {
				return nil, errors.Wrap(err, "register outbox metrics")
			}
		}
	}
	return r, nil
}

// Run polls until ctx is cancelled. Publish errors are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	lg.Info("Outbox relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			// Drain the backlog before waiting for the next tick.
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					if ctx.Err() == nil {
						lg.Error("Outbox publish failed", zap.Error(err))
					}
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// Flush publishes one batch of pending events and returns how many were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.src.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, len(events))
	ids := make([]int64, len(events))
	for i, ev := range events {
		msgs[i] = Message(ev)
		ids[i] = ev.ID
	}

	if err := r.w.WriteMessages(ctx, msgs...); err != nil {
		r.failures.Inc()
		return 0, errors.Wrap(err, "write messages")
	}
	// A crash here republishes the batch; consumers dedupe on event id.
	if err := r.src.MarkSent(ctx, ids); err != nil {
		return 0, errors.Wrap(err, "mark sent")
	}

	r.published.Add(float64(len(events)))
	return len(events), nil
}

// Message converts an event into a Kafka message keyed by its aggregate, so
// all events of one order land on the same partition.
func Message(ev Event) kafka.Message {
	return kafka.Message{
		Key:   []byte(ev.Aggregate),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(ev.ID, 10))},
		},
	}
}

// NewKafkaWriter returns a writer for topic that hashes keys onto partitions.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
