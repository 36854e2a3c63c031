package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStaleReceipt is returned when a message was redelivered to another
// consumer since it was received.
var ErrStaleReceipt = errors.New("capture message receipt is stale")

// PostgresQueue keeps capture messages in the capture_queue table. Receiving
// claims rows with FOR UPDATE SKIP LOCKED and hides them for the visibility
// timeout under a fresh receipt handle.
type PostgresQueue struct {
	db         *pgxpool.Pool
	visibility time.Duration
}

func NewPostgresQueue(db *pgxpool.Pool, visibility time.Duration) *PostgresQueue {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &PostgresQueue{db: db, visibility: visibility}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, chargeExternalID string) error {
	_, err := q.db.Exec(ctx, "INSERT INTO capture_queue (charge_external_id) VALUES ($1)", chargeExternalID)
	if err != nil {
		return fmt.Errorf("enqueue capture: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	rows, err := q.db.Query(ctx,
		`UPDATE capture_queue SET
			receipt_handle = gen_random_uuid(),
			delivery_count = delivery_count + 1,
			visible_at = now() + $2 * interval '1 millisecond'
		 WHERE id IN (
			SELECT id FROM capture_queue
			WHERE visible_at <= now()
			ORDER BY visible_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED)
		 RETURNING id, charge_external_id, receipt_handle::text, delivery_count`,
		max, q.visibility.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("receive captures: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.ChargeExternalID, &m.ReceiptHandle, &m.DeliveryCount)
		return m, err
	})
}

func (q *PostgresQueue) MarkProcessed(ctx context.Context, msg Message) error {
	tag, err := q.db.Exec(ctx,
		"DELETE FROM capture_queue WHERE id = $1 AND receipt_handle = $2::uuid", msg.ID, msg.ReceiptHandle)
	if err != nil {
		return fmt.Errorf("delete capture message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleReceipt
	}
	return nil
}

func (q *PostgresQueue) Reschedule(ctx context.Context, msg Message, delay time.Duration) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE capture_queue SET visible_at = now() + $3 * interval '1 millisecond'
		 WHERE id = $1 AND receipt_handle = $2::uuid`,
		msg.ID, msg.ReceiptHandle, delay.Milliseconds())
	if err != nil {
		return fmt.Errorf("reschedule capture message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleReceipt
	}
	return nil
}
