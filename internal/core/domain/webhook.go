package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event names sent to merchant webhook URLs.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentExpired   = "payment.expired"
	EventPaymentCancelled = "payment.cancelled"
)

// DeliveryStatus represents the delivery state of an outbox row.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusDead      DeliveryStatus = "dead"
)

// WebhookDelivery is a webhook outbox row. It is written in the same
// database transaction as the status transition that produced it, so a
// committed transition can never lose its notification. A polling worker
// delivers due rows with bounded retries; rows that exhaust their attempt
// budget move to the dead-letter state for manual inspection.
type WebhookDelivery struct {
	ID            uuid.UUID      `json:"id"`
	PaymentLinkID string         `json:"payment_link_id"`
	MerchantID    uuid.UUID      `json:"merchant_id"`
	Event         string         `json:"event"`
	URL           string         `json:"url"`
	Payload       []byte         `json:"payload"` // canonical JSON, unsigned
	Status        DeliveryStatus `json:"status"`
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"max_attempts"`
	HTTPStatus    *int           `json:"http_status,omitempty"`
	LastError     *string        `json:"last_error,omitempty"`
	NextRetryAt   time.Time      `json:"next_retry_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Exhausted reports whether the delivery has used up its attempt budget.
func (d *WebhookDelivery) Exhausted() bool {
	return d.Attempt >= d.MaxAttempts
}
