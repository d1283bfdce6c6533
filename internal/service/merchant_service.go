package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyPrefix    = "pk_"
	apiKeyRandBytes = 32
	// prefixHandleLen is how many characters of the encoded key body are
	// stored as the lookup handle alongside the bcrypt hash.
	prefixHandleLen = 8

	bcryptCost = 10
)

// merchantService implements ports.MerchantService.
type merchantService struct {
	merchantRepo ports.MerchantRepository
	cipher       ports.SecretCipher
	log          zerolog.Logger
}

// NewMerchantService creates a new merchant registry service.
func NewMerchantService(
	merchantRepo ports.MerchantRepository,
	cipher ports.SecretCipher,
	log zerolog.Logger,
) ports.MerchantService {
	return &merchantService{
		merchantRepo: merchantRepo,
		cipher:       cipher,
		log:          log,
	}
}

// IssueKey registers a merchant and returns the API key and webhook signing
// secret. Both are disclosed exactly once: only the bcrypt hash of the key
// and the encrypted secret are stored.
func (s *merchantService) IssueKey(ctx context.Context, walletAddress, merchantName string) (*ports.IssuedKey, error) {
	if strings.TrimSpace(walletAddress) == "" || strings.TrimSpace(merchantName) == "" {
		return nil, apperror.Validation("wallet_address and merchant_name are required")
	}

	merchant := &domain.Merchant{
		ID:            uuid.New(),
		WalletAddress: walletAddress,
		Name:          merchantName,
	}

	issued, err := s.provisionCredentials(merchant)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	merchant.CreatedAt = now
	merchant.UpdatedAt = now

	if err := s.merchantRepo.Create(ctx, merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create merchant: %w", err))
	}

	s.log.Info().
		Str("merchant_id", merchant.ID.String()).
		Str("key_prefix", merchant.KeyPrefix).
		Msg("api key issued")

	return issued, nil
}

// RotateKey regenerates the API key and webhook secret for a merchant. The
// previous key stops authenticating as soon as the update commits.
func (s *merchantService) RotateKey(ctx context.Context, merchantID uuid.UUID) (*ports.IssuedKey, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	issued, err := s.provisionCredentials(merchant)
	if err != nil {
		return nil, err
	}
	merchant.UpdatedAt = time.Now().UTC()

	if err := s.merchantRepo.Update(ctx, merchant); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update merchant: %w", err))
	}

	s.log.Info().
		Str("merchant_id", merchant.ID.String()).
		Str("key_prefix", merchant.KeyPrefix).
		Msg("api key rotated")

	return issued, nil
}

// Authenticate resolves an API key to its merchant. An empty key yields the
// unauthorized kind; a key that matches no merchant yields invalid_api_key.
func (s *merchantService) Authenticate(ctx context.Context, apiKey string) (*domain.Merchant, error) {
	if apiKey == "" {
		return nil, apperror.ErrMissingAPIKey()
	}

	prefix, ok := keyPrefixOf(apiKey)
	if !ok {
		return nil, apperror.ErrInvalidAPIKey()
	}

	merchant, err := s.merchantRepo.GetByKeyPrefix(ctx, prefix)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrInvalidAPIKey()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(merchant.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, apperror.ErrInvalidAPIKey()
	}

	return merchant, nil
}

// provisionCredentials generates a fresh key pair onto merchant and returns
// the plaintext disclosure.
func (s *merchantService) provisionCredentials(merchant *domain.Merchant) (*ports.IssuedKey, error) {
	apiKey, prefix, err := generateAPIKey()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate api key: %w", err))
	}

	keyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcryptCost)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash api key: %w", err))
	}

	webhookSecret, err := generateWebhookSecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}

	secretEnc, err := s.cipher.Encrypt(webhookSecret)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encrypt webhook secret: %w", err))
	}

	merchant.KeyPrefix = prefix
	merchant.APIKeyHash = string(keyHash)
	merchant.WebhookSecretEnc = secretEnc

	return &ports.IssuedKey{
		MerchantID:    merchant.ID,
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
	}, nil
}

// generateAPIKey returns the full key (shown once) and the stored lookup
// prefix. Format: pk_<base64url(32 random bytes)>.
func generateAPIKey() (fullKey string, prefix string, err error) {
	raw := make([]byte, apiKeyRandBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	fullKey = apiKeyPrefix + encoded
	prefix = apiKeyPrefix + encoded[:prefixHandleLen]
	return fullKey, prefix, nil
}

// generateWebhookSecret returns a whsec_-prefixed random hex secret.
func generateWebhookSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(raw), nil
}

// keyPrefixOf derives the lookup prefix from a presented key.
func keyPrefixOf(apiKey string) (string, bool) {
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return "", false
	}
	body := apiKey[len(apiKeyPrefix):]
	if len(body) < prefixHandleLen {
		return "", false
	}
	return apiKeyPrefix + body[:prefixHandleLen], true
}
