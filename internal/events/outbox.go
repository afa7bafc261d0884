package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

// InsertTx appends ev to the outbox inside the caller's transaction so the
// fact is stored if and only if the state change commits.
func InsertTx(ctx context.Context, tx pgx.Tx, ev Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.Type, ev.AggregateID, []byte(ev.Payload), ev.CreatedAt)
	if err != nil {
		return db.Storage(fmt.Sprintf("insert %s event", ev.Type), err)
	}
	return nil
}

// Store is the relay's view of the outbox.
type Store interface {
	// Drain claims up to limit unpublished events in id order and passes them
	// to fn. The first n events fn reports as delivered are marked published
	// in the same transaction; the rest stay for the next run.
	Drain(ctx context.Context, limit int, fn func(ctx context.Context, batch []Event) (int, error)) (int, error)
}

type PgOutbox struct {
	pool *pgxpool.Pool
}

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

func (o *PgOutbox) Drain(ctx context.Context, limit int, fn func(ctx context.Context, batch []Event) (int, error)) (int, error) {
	var (
		delivered  int
		publishErr error
	)

	err := db.WithTx(ctx, o.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_type, aggregate_id, payload, created_at
			FROM event_logs
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return db.Storage("claim events", err)
		}

		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
			var (
				ev      Event
				payload []byte
			)
			if err := row.Scan(&ev.ID, &ev.Type, &ev.AggregateID, &payload, &ev.CreatedAt); err != nil {
				return Event{}, err
			}
			ev.Payload = payload
			return ev, nil
		})
		if err != nil {
			return db.Storage("scan events", err)
		}
		if len(batch) == 0 {
			return nil
		}

		n, err := fn(ctx, batch)
		publishErr = err
		if n <= 0 {
			return nil
		}

		ids := make([]int64, 0, n)
		for _, ev := range batch[:n] {
			ids = append(ids, ev.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE event_logs SET published_at = now() WHERE id = ANY($1)
		`, ids); err != nil {
			return db.Storage("mark events published", err)
		}
		delivered = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, publishErr
}
