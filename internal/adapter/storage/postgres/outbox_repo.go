package postgres

import (
	"context"
	"fmt"
	"time"

	"paylink-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, payment_link_id, merchant_id, event, url, payload, status,
	attempt, max_attempts, http_status, last_error, next_retry_at, created_at, updated_at`

// OutboxRepo implements ports.WebhookOutboxRepository on a webhook_outbox
// table. Rows are claimed with FOR UPDATE SKIP LOCKED so concurrent workers
// never deliver the same row inside one lease window.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Enqueue inserts a pending delivery inside the caller's transaction.
func (r *OutboxRepo) Enqueue(ctx context.Context, tx pgx.Tx, d *domain.WebhookDelivery) error {
	query := `INSERT INTO webhook_outbox (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := tx.Exec(ctx, query,
		d.ID, d.PaymentLinkID, d.MerchantID, d.Event, d.URL, d.Payload, d.Status,
		d.Attempt, d.MaxAttempts, d.HTTPStatus, d.LastError, d.NextRetryAt,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due pending deliveries. The claim
// pushes next_retry_at forward by lease, so a worker that dies mid-delivery
// only delays the row, never loses it.
func (r *OutboxRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.WebhookDelivery, error) {
	query := `UPDATE webhook_outbox SET next_retry_at = $1
		WHERE id IN (
			SELECT id FROM webhook_outbox
			WHERE status = 'pending' AND next_retry_at <= $2
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliveryColumns

	rows, err := r.pool.Query(ctx, query, now.Add(lease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.WebhookDelivery
	for rows.Next() {
		d := domain.WebhookDelivery{}
		err := rows.Scan(
			&d.ID, &d.PaymentLinkID, &d.MerchantID, &d.Event, &d.URL, &d.Payload, &d.Status,
			&d.Attempt, &d.MaxAttempts, &d.HTTPStatus, &d.LastError, &d.NextRetryAt,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery rows: %w", err)
	}
	return deliveries, nil
}

// MarkDelivered finalizes a successful delivery.
func (r *OutboxRepo) MarkDelivered(ctx context.Context, id uuid.UUID, httpStatus int) error {
	query := `UPDATE webhook_outbox
		SET status = 'delivered', http_status = $1, updated_at = $2
		WHERE id = $3`

	_, err := r.pool.Exec(ctx, query, httpStatus, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// RecordFailure persists a failed attempt, including a dead-letter status
// when the budget is spent.
func (r *OutboxRepo) RecordFailure(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `UPDATE webhook_outbox
		SET status = $1, attempt = $2, http_status = $3, last_error = $4, next_retry_at = $5, updated_at = $6
		WHERE id = $7`

	_, err := r.pool.Exec(ctx, query,
		d.Status, d.Attempt, d.HTTPStatus, d.LastError, d.NextRetryAt, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}

// ListDead returns a merchant's dead-lettered deliveries, newest first.
func (r *OutboxRepo) ListDead(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_outbox
		WHERE merchant_id = $1 AND status = 'dead'
		ORDER BY updated_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.WebhookDelivery
	for rows.Next() {
		d := domain.WebhookDelivery{}
		err := rows.Scan(
			&d.ID, &d.PaymentLinkID, &d.MerchantID, &d.Event, &d.URL, &d.Payload, &d.Status,
			&d.Attempt, &d.MaxAttempts, &d.HTTPStatus, &d.LastError, &d.NextRetryAt,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dead delivery row: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
