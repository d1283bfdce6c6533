package dto

import (
	"time"

	"paylink-gateway/internal/core/domain"
)

// GenerateKeyRequest is the request body for merchant registration.
type GenerateKeyRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,min=1,max=128"`
	MerchantName  string `json:"merchant_name" binding:"required,min=1,max=100"`
}

// GenerateKeyResponse is the one-time credential disclosure.
type GenerateKeyResponse struct {
	MerchantID    string `json:"merchant_id"`
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
	Warning       string `json:"warning"`
}

// KeyDisclosureWarning accompanies every credential disclosure.
const KeyDisclosureWarning = "Store these credentials now. They are shown only once and cannot be retrieved again."

// CreateLinkRequest is the request body for payment link creation.
type CreateLinkRequest struct {
	Amount      float64           `json:"amount" binding:"required,gt=0"`
	Currency    string            `json:"currency" binding:"required,min=2,max=10"`
	Description string            `json:"description" binding:"max=500"`
	OrderID     string            `json:"order_id" binding:"max=100"`
	ExpiresIn   *int64            `json:"expires_in,omitempty" binding:"omitempty,gt=0"` // seconds
	WebhookURL  *string           `json:"webhook_url,omitempty" binding:"omitempty,safe_url"`
	RedirectURL *string           `json:"redirect_url,omitempty" binding:"omitempty,safe_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// VerifyPaymentRequest is the payment proof submitted by the on-chain
// verifier after observing the transaction.
type VerifyPaymentRequest struct {
	PaymentLinkID   string  `json:"payment_link_id" binding:"required,safe_id"`
	TransactionHash string  `json:"transaction_hash" binding:"required,max=128"`
	PaidAmount      float64 `json:"amount" binding:"required,gt=0"`
	PaidCurrency    string  `json:"currency" binding:"required,min=2,max=10"`
}

// PaymentLinkResponse is the merchant-facing projection of a payment link.
type PaymentLinkResponse struct {
	ID              string            `json:"id"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	OrderID         string            `json:"order_id,omitempty"`
	Status          string            `json:"status"`
	PaymentURL      string            `json:"payment_url"`
	QRCode          string            `json:"qr_code,omitempty"`
	ExpiresAt       string            `json:"expires_at"`
	WebhookURL      *string           `json:"webhook_url,omitempty"`
	RedirectURL     *string           `json:"redirect_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       string            `json:"created_at"`
	PaidAt          *string           `json:"paid_at,omitempty"`
	TransactionHash *string           `json:"transaction_hash,omitempty"`
}

// PaymentStatusResponse is the public (payer-facing) projection. It omits
// webhook configuration and metadata, which belong to the merchant.
type PaymentStatusResponse struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	PaymentURL  string  `json:"payment_url"`
	QRCode      string  `json:"qr_code,omitempty"`
	ExpiresAt   string  `json:"expires_at"`
	RedirectURL *string `json:"redirect_url,omitempty"`
}

// LinkListResponse wraps a paginated payment link list.
type LinkListResponse struct {
	Items  []PaymentLinkResponse `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// DeadDeliveryResponse describes a dead-lettered webhook delivery.
type DeadDeliveryResponse struct {
	ID            string  `json:"id"`
	PaymentLinkID string  `json:"payment_link_id"`
	Event         string  `json:"event"`
	URL           string  `json:"url"`
	Attempt       int     `json:"attempt"`
	HTTPStatus    *int    `json:"http_status,omitempty"`
	LastError     *string `json:"last_error,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// FromLink maps a domain link to its merchant-facing response.
func FromLink(l *domain.PaymentLink) PaymentLinkResponse {
	resp := PaymentLinkResponse{
		ID:              l.ID,
		Amount:          l.Amount,
		Currency:        l.Currency,
		Description:     l.Description,
		OrderID:         l.OrderID,
		Status:          string(l.Status),
		PaymentURL:      l.PaymentURL,
		QRCode:          l.QRCode,
		ExpiresAt:       l.ExpiresAt.UTC().Format(time.RFC3339),
		WebhookURL:      l.WebhookURL,
		RedirectURL:     l.RedirectURL,
		Metadata:        l.Metadata,
		CreatedAt:       l.CreatedAt.UTC().Format(time.RFC3339),
		TransactionHash: l.TransactionHash,
	}
	if l.PaidAt != nil {
		s := l.PaidAt.UTC().Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}

// FromLinkPublic maps a domain link to its payer-facing response.
func FromLinkPublic(l *domain.PaymentLink) PaymentStatusResponse {
	return PaymentStatusResponse{
		ID:          l.ID,
		Amount:      l.Amount,
		Currency:    l.Currency,
		Description: l.Description,
		Status:      string(l.Status),
		PaymentURL:  l.PaymentURL,
		QRCode:      l.QRCode,
		ExpiresAt:   l.ExpiresAt.UTC().Format(time.RFC3339),
		RedirectURL: l.RedirectURL,
	}
}

// FromDelivery maps a webhook outbox row to its response.
func FromDelivery(d *domain.WebhookDelivery) DeadDeliveryResponse {
	return DeadDeliveryResponse{
		ID:            d.ID.String(),
		PaymentLinkID: d.PaymentLinkID,
		Event:         d.Event,
		URL:           d.URL,
		Attempt:       d.Attempt,
		HTTPStatus:    d.HTTPStatus,
		LastError:     d.LastError,
		CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
