package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const linkColumns = `id, merchant_id, amount, currency, description, order_id, status,
	payment_url, qr_code, expires_at, webhook_url, redirect_url, metadata,
	created_at, paid_at, transaction_hash`

// LinkRepo implements ports.PaymentLinkRepository. Status transitions are
// conditional updates guarded on status = 'pending'; the caller learns
// whether it won the transition from the returned bool.
type LinkRepo struct {
	pool Pool
}

// NewLinkRepo creates a new LinkRepo.
func NewLinkRepo(pool Pool) *LinkRepo {
	return &LinkRepo{pool: pool}
}

// Create inserts a new payment link.
func (r *LinkRepo) Create(ctx context.Context, l *domain.PaymentLink) error {
	query := `INSERT INTO payment_links (` + linkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.MerchantID, l.Amount, l.Currency, l.Description, l.OrderID, l.Status,
		l.PaymentURL, l.QRCode, l.ExpiresAt, l.WebhookURL, l.RedirectURL, l.Metadata,
		l.CreatedAt, l.PaidAt, l.TransactionHash,
	)
	if err != nil {
		return fmt.Errorf("insert payment link: %w", err)
	}
	return nil
}

// GetByID fetches a payment link by its token.
func (r *LinkRepo) GetByID(ctx context.Context, id string) (*domain.PaymentLink, error) {
	query := `SELECT ` + linkColumns + ` FROM payment_links WHERE id = $1`
	return r.scanLink(r.pool.QueryRow(ctx, query, id))
}

// List fetches a merchant's payment links with filtering and pagination.
func (r *LinkRepo) List(ctx context.Context, params ports.LinkListParams) ([]domain.PaymentLink, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
	args = append(args, params.MerchantID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payment_links %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payment links: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT `+linkColumns+` FROM payment_links %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment links: %w", err)
	}
	defer rows.Close()

	var links []domain.PaymentLink
	for rows.Next() {
		l := domain.PaymentLink{}
		err := rows.Scan(
			&l.ID, &l.MerchantID, &l.Amount, &l.Currency, &l.Description, &l.OrderID, &l.Status,
			&l.PaymentURL, &l.QRCode, &l.ExpiresAt, &l.WebhookURL, &l.RedirectURL, &l.Metadata,
			&l.CreatedAt, &l.PaidAt, &l.TransactionHash,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment link row: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment link rows: %w", err)
	}
	return links, total, nil
}

// MarkPaid flips a pending link to paid. Returns false when the link was no
// longer pending, without error.
func (r *LinkRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id string, txHash string, paidAt time.Time) (bool, error) {
	query := `UPDATE payment_links
		SET status = 'paid', transaction_hash = $1, paid_at = $2
		WHERE id = $3 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, txHash, paidAt, id)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired flips a pending link whose deadline passed to expired.
func (r *LinkRepo) MarkExpired(ctx context.Context, tx pgx.Tx, id string, now time.Time) (bool, error) {
	query := `UPDATE payment_links
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending' AND expires_at < $2`

	tag, err := tx.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled flips a pending link to cancelled. The merchant_id guard is
// redundant with the service-level ownership check but keeps the update
// tenant-safe on its own.
func (r *LinkRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id string, merchantID uuid.UUID) (bool, error) {
	query := `UPDATE payment_links
		SET status = 'cancelled'
		WHERE id = $1 AND merchant_id = $2 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, id, merchantID)
	if err != nil {
		return false, fmt.Errorf("mark cancelled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LinkRepo) scanLink(row pgx.Row) (*domain.PaymentLink, error) {
	l := &domain.PaymentLink{}
	err := row.Scan(
		&l.ID, &l.MerchantID, &l.Amount, &l.Currency, &l.Description, &l.OrderID, &l.Status,
		&l.PaymentURL, &l.QRCode, &l.ExpiresAt, &l.WebhookURL, &l.RedirectURL, &l.Metadata,
		&l.CreatedAt, &l.PaidAt, &l.TransactionHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment link: %w", err)
	}
	return l, nil
}
