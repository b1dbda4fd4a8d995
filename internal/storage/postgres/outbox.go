package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cupcake-checkout/internal/outbox"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (aggregate, event_type, payload) VALUES ($1, $2, $3)`

	fetchOutboxSQL = `SELECT id, aggregate, event_type, payload, created_at
	FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`
)

var _ outbox.Source = (*OutboxStore)(nil)

// OutboxStore implements outbox.Source backed by PostgreSQL.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore returns an OutboxStore that uses the given pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

type outboxRow struct {
	ID        int64     `db:"id"`
	Aggregate string    `db:"aggregate"`
	EventType string    `db:"event_type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// FetchPending returns up to limit unsent events, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, _ := s.pool.Query(ctx, fetchOutboxSQL, limit)
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
		r, err := pgx.RowToStructByName[outboxRow](row)
		return outbox.Event{
			ID:        r.ID,
			Aggregate: r.Aggregate,
			Type:      outbox.EventType(r.EventType),
			Payload:   r.Payload,
			CreatedAt: r.CreatedAt,
		}, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox events: %w", err)
	}
	return events, nil
}

// MarkSent stamps the given events as published.
func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	if _, err := s.pool.Exec(ctx, markOutboxSentSQL, ids); err != nil {
		return fmt.Errorf("marking outbox events sent: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, q querier, ev outbox.Event) error {
	if _, err := q.Exec(ctx, insertOutboxSQL, ev.Aggregate, string(ev.Type), ev.Payload); err != nil {
		return fmt.Errorf("inserting %s outbox event: %w", ev.Type, err)
	}
	return nil
}
