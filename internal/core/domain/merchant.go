package domain

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is a registered API consumer identified by an API key.
// The plaintext key is disclosed exactly once at issuance; only its bcrypt
// hash and a short lookup prefix are stored. The webhook signing secret is
// per merchant and AES-encrypted at rest.
type Merchant struct {
	ID               uuid.UUID `json:"id"`
	WalletAddress    string    `json:"wallet_address"`
	Name             string    `json:"name"`
	KeyPrefix        string    `json:"-"` // lookup handle, e.g. "pk_AbCd1234"
	APIKeyHash       string    `json:"-"` // bcrypt, never exposed
	WebhookSecretEnc string    `json:"-"` // AES-256-GCM, never exposed
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
