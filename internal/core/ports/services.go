package ports

import (
	"context"

	"paylink-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// SignatureService handles HMAC-SHA256 signing of webhook payloads.
type SignatureService interface {
	// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
	Sign(secret string, payload []byte) string
	// Verify recomputes and compares in constant time.
	Verify(secret string, payload []byte, signature string) bool
}

// SecretCipher encrypts per-merchant webhook secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// IssuedKey is the one-time disclosure of a merchant's credentials.
// Neither value can be retrieved again; keys can only be regenerated.
type IssuedKey struct {
	MerchantID    uuid.UUID
	APIKey        string
	WebhookSecret string
}

// MerchantService defines API-key issuance and authentication.
type MerchantService interface {
	IssueKey(ctx context.Context, walletAddress, merchantName string) (*IssuedKey, error)
	RotateKey(ctx context.Context, merchantID uuid.UUID) (*IssuedKey, error)
	// Authenticate resolves an API key to its merchant. A missing key and an
	// unknown key produce distinct error kinds so clients can disambiguate.
	Authenticate(ctx context.Context, apiKey string) (*domain.Merchant, error)
}

// CreateLinkRequest holds validated input for link creation.
type CreateLinkRequest struct {
	Amount      float64
	Currency    string
	Description string
	OrderID     string
	ExpiresIn   *int64 // seconds; nil = default
	WebhookURL  *string
	RedirectURL *string
	Metadata    map[string]string
}

// VerifyRequest holds the payment proof submitted by the on-chain verifier.
type VerifyRequest struct {
	PaymentLinkID   string
	TransactionHash string
	PaidAmount      float64
	PaidCurrency    string
}

// LinkService defines the payment-link lifecycle.
type LinkService interface {
	Create(ctx context.Context, merchantID uuid.UUID, req CreateLinkRequest) (*domain.PaymentLink, error)
	// Get is publicly reachable and performs the lazy expiry check.
	Get(ctx context.Context, id string) (*domain.PaymentLink, error)
	List(ctx context.Context, params LinkListParams) ([]domain.PaymentLink, int64, error)
	Cancel(ctx context.Context, id string, merchantID uuid.UUID) (*domain.PaymentLink, error)
	Verify(ctx context.Context, req VerifyRequest) (*domain.PaymentLink, error)
}
