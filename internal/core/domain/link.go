package domain

import (
	"time"

	"github.com/google/uuid"
)

// LinkStatus represents the lifecycle state of a payment link.
type LinkStatus string

const (
	LinkStatusPending   LinkStatus = "pending"
	LinkStatusPaid      LinkStatus = "paid"
	LinkStatusExpired   LinkStatus = "expired"
	LinkStatusCancelled LinkStatus = "cancelled"
)

// Currencies accepted on payment links.
var AllowedCurrencies = map[string]bool{
	"PM":   true,
	"ETH":  true,
	"BNB":  true,
	"USDT": true,
	"USDC": true,
}

// DefaultExpiry is applied when a create request omits expires_in.
const DefaultExpiry = 3600 * time.Second

// PaymentLink is a payment request a merchant shares with a payer.
// Links are append-mostly: once a terminal status is reached the record is
// immutable and is retained for audit and listing, never deleted.
type PaymentLink struct {
	ID              string            `json:"id"` // opaque token, "pl_" prefix
	MerchantID      uuid.UUID         `json:"merchant_id"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	OrderID         string            `json:"order_id,omitempty"`
	Status          LinkStatus        `json:"status"`
	PaymentURL      string            `json:"payment_url"`
	QRCode          string            `json:"qr_code,omitempty"` // base64 PNG data URL
	ExpiresAt       time.Time         `json:"expires_at"`
	WebhookURL      *string           `json:"webhook_url,omitempty"`
	RedirectURL     *string           `json:"redirect_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	TransactionHash *string           `json:"transaction_hash,omitempty"`
}

// IsTerminal returns true if the link is in a final state.
func (l *PaymentLink) IsTerminal() bool {
	return l.Status == LinkStatusPaid ||
		l.Status == LinkStatusExpired ||
		l.Status == LinkStatusCancelled
}

// IsExpiredAt reports whether a pending link's deadline has passed at t.
// The status flip itself happens lazily on read via a conditional update.
func (l *PaymentLink) IsExpiredAt(t time.Time) bool {
	return l.Status == LinkStatusPending && t.After(l.ExpiresAt)
}

// ValidCurrency reports membership in the allowed currency set.
func ValidCurrency(currency string) bool {
	return AllowedCurrencies[currency]
}
