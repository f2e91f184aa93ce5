package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prmjagdish/schedula/internal/booking"
	"github.com/prmjagdish/schedula/internal/db"
)

// PgOutbox reads event_logs. SKIP LOCKED lets several relays run side by
// side without publishing the same row twice.
type PgOutbox struct {
	pool *pgxpool.Pool
}

var _ Source = (*PgOutbox)(nil)

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

func (o *PgOutbox) ClaimUnpublished(ctx context.Context, limit int, fn func(ctx context.Context, events []booking.EventLog) []int64) error {
	return db.WithTx(ctx, o.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_type, appointment_id, payload, created_at
			FROM event_logs
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("select unpublished events: %w", err)
		}

		events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (booking.EventLog, error) {
			var ev booking.EventLog
			err := row.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt)
			return ev, err
		})
		if err != nil {
			return fmt.Errorf("scan unpublished events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		ids := fn(ctx, events)
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE event_logs SET published_at = now() WHERE id = ANY($1)
		`, ids); err != nil {
			return fmt.Errorf("mark events published: %w", err)
		}
		return nil
	})
}

// Backlog counts events not yet published.
func (o *PgOutbox) Backlog(ctx context.Context) (int, error) {
	var n int
	err := o.pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_logs WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unpublished events: %w", err)
	}
	return n, nil
}
