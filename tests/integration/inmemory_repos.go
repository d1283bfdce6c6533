package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func (r *inMemoryMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *inMemoryMerchantRepo) GetByKeyPrefix(ctx context.Context, prefix string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.KeyPrefix == prefix {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryMerchantRepo) Update(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.merchants[m.ID]; !ok {
		return fmt.Errorf("merchant not found")
	}
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

// --- In-Memory Payment Link Repo ---

// inMemoryLinkRepo mirrors the conditional-update semantics of the SQL
// implementation: transitions succeed only while the row is still pending,
// all under one mutex so concurrent callers observe exactly one winner.
type inMemoryLinkRepo struct {
	mu    sync.RWMutex
	links map[string]*domain.PaymentLink
}

func newInMemoryLinkRepo() *inMemoryLinkRepo {
	return &inMemoryLinkRepo{links: make(map[string]*domain.PaymentLink)}
}

func (r *inMemoryLinkRepo) Create(ctx context.Context, link *domain.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *inMemoryLinkRepo) GetByID(ctx context.Context, id string) (*domain.PaymentLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *inMemoryLinkRepo) List(ctx context.Context, params ports.LinkListParams) ([]domain.PaymentLink, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PaymentLink
	for _, l := range r.links {
		if l.MerchantID != params.MerchantID {
			continue
		}
		if params.Status != nil && l.Status != *params.Status {
			continue
		}
		result = append(result, *l)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	if params.Offset >= len(result) {
		return []domain.PaymentLink{}, total, nil
	}
	end := params.Offset + params.Limit
	if end > len(result) {
		end = len(result)
	}
	return result[params.Offset:end], total, nil
}

func (r *inMemoryLinkRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id string, txHash string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.Status != domain.LinkStatusPending {
		return false, nil
	}
	l.Status = domain.LinkStatusPaid
	l.TransactionHash = &txHash
	l.PaidAt = &paidAt
	return true, nil
}

func (r *inMemoryLinkRepo) MarkExpired(ctx context.Context, tx pgx.Tx, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.Status != domain.LinkStatusPending || !now.After(l.ExpiresAt) {
		return false, nil
	}
	l.Status = domain.LinkStatusExpired
	return true, nil
}

func (r *inMemoryLinkRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id string, merchantID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.MerchantID != merchantID || l.Status != domain.LinkStatusPending {
		return false, nil
	}
	l.Status = domain.LinkStatusCancelled
	return true, nil
}

// --- In-Memory Webhook Outbox Repo ---

type inMemoryOutboxRepo struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]*domain.WebhookDelivery
}

func newInMemoryOutboxRepo() *inMemoryOutboxRepo {
	return &inMemoryOutboxRepo{deliveries: make(map[uuid.UUID]*domain.WebhookDelivery)}
}

func (r *inMemoryOutboxRepo) Enqueue(ctx context.Context, tx pgx.Tx, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *inMemoryOutboxRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.WebhookDelivery
	for _, d := range r.deliveries {
		if d.Status != domain.DeliveryStatusPending || d.NextRetryAt.After(now) {
			continue
		}
		d.NextRetryAt = now.Add(lease)
		due = append(due, *d)
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (r *inMemoryOutboxRepo) MarkDelivered(ctx context.Context, id uuid.UUID, httpStatus int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return fmt.Errorf("delivery not found")
	}
	d.Status = domain.DeliveryStatusDelivered
	d.HTTPStatus = &httpStatus
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryOutboxRepo) RecordFailure(ctx context.Context, delivery *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[delivery.ID]
	if !ok {
		return fmt.Errorf("delivery not found")
	}
	d.Status = delivery.Status
	d.Attempt = delivery.Attempt
	d.HTTPStatus = delivery.HTTPStatus
	d.LastError = delivery.LastError
	d.NextRetryAt = delivery.NextRetryAt
	d.UpdatedAt = delivery.UpdatedAt
	return nil
}

func (r *inMemoryOutboxRepo) ListDead(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var dead []domain.WebhookDelivery
	for _, d := range r.deliveries {
		if d.Status != domain.DeliveryStatusDead || d.MerchantID != merchantID {
			continue
		}
		dead = append(dead, *d)
		if len(dead) >= limit {
			break
		}
	}
	return dead, nil
}

// all returns a snapshot of every outbox row, for assertions.
func (r *inMemoryOutboxRepo) all() []domain.WebhookDelivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WebhookDelivery, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		out = append(out, *d)
	}
	return out
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
