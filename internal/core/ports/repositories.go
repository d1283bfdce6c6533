package ports

import (
	"context"
	"time"

	"paylink-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	// GetByKeyPrefix fetches a merchant by the stored API-key lookup prefix.
	// Returns nil, nil when no merchant matches.
	GetByKeyPrefix(ctx context.Context, prefix string) (*domain.Merchant, error)
	Update(ctx context.Context, merchant *domain.Merchant) error
}

// LinkListParams holds filter + pagination for listing payment links.
// MerchantID is mandatory: listings are always tenant-scoped.
type LinkListParams struct {
	MerchantID uuid.UUID
	Status     *domain.LinkStatus
	Limit      int
	Offset     int
}

// PaymentLinkRepository defines persistence operations for payment links.
// All status transitions are conditional updates: they succeed only if the
// row's status is still "pending" at commit time, and report the outcome via
// the returned bool (rows affected). Methods accepting pgx.Tx run inside the
// transaction that also writes the webhook outbox row.
type PaymentLinkRepository interface {
	Create(ctx context.Context, link *domain.PaymentLink) error
	GetByID(ctx context.Context, id string) (*domain.PaymentLink, error)
	List(ctx context.Context, params LinkListParams) ([]domain.PaymentLink, int64, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id string, txHash string, paidAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, tx pgx.Tx, id string, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, tx pgx.Tx, id string, merchantID uuid.UUID) (bool, error)
}

// WebhookOutboxRepository defines persistence for the webhook outbox.
type WebhookOutboxRepository interface {
	// Enqueue writes a pending delivery inside the same transaction as the
	// status transition that produced it.
	Enqueue(ctx context.Context, tx pgx.Tx, delivery *domain.WebhookDelivery) error
	// ClaimDue atomically claims up to limit pending deliveries whose retry
	// time has passed, pushing their next_retry_at forward by lease so other
	// workers skip them. Delivery stays at-least-once.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.WebhookDelivery, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, httpStatus int) error
	// RecordFailure persists attempt count, next retry time, last error and
	// (when the budget is exhausted) the dead-letter status.
	RecordFailure(ctx context.Context, delivery *domain.WebhookDelivery) error
	// ListDead returns dead-lettered deliveries for manual inspection.
	ListDead(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookDelivery, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
