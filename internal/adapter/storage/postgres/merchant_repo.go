package postgres

import (
	"context"
	"errors"
	"fmt"

	"paylink-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (id, wallet_address, name, key_prefix, api_key_hash, webhook_secret_enc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.WalletAddress, m.Name,
		m.KeyPrefix, m.APIKeyHash, m.WebhookSecretEnc,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT id, wallet_address, name, key_prefix, api_key_hash, webhook_secret_enc, created_at, updated_at
		FROM merchants WHERE id = $1`

	return r.scanMerchant(r.pool.QueryRow(ctx, query, id))
}

// GetByKeyPrefix fetches a merchant by the stored API-key lookup prefix.
func (r *MerchantRepo) GetByKeyPrefix(ctx context.Context, prefix string) (*domain.Merchant, error) {
	query := `SELECT id, wallet_address, name, key_prefix, api_key_hash, webhook_secret_enc, created_at, updated_at
		FROM merchants WHERE key_prefix = $1`

	return r.scanMerchant(r.pool.QueryRow(ctx, query, prefix))
}

// Update updates a merchant's mutable fields, including rotated credentials.
func (r *MerchantRepo) Update(ctx context.Context, m *domain.Merchant) error {
	query := `UPDATE merchants
		SET name=$1, key_prefix=$2, api_key_hash=$3, webhook_secret_enc=$4, updated_at=$5
		WHERE id=$6`
	_, err := r.pool.Exec(ctx, query,
		m.Name, m.KeyPrefix, m.APIKeyHash, m.WebhookSecretEnc, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update merchant: %w", err)
	}
	return nil
}

func (r *MerchantRepo) scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	err := row.Scan(
		&m.ID, &m.WalletAddress, &m.Name,
		&m.KeyPrefix, &m.APIKeyHash, &m.WebhookSecretEnc,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan merchant: %w", err)
	}
	return m, nil
}
