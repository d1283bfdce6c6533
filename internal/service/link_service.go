package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	linkIDRandBytes = 16
	qrCodeSizePx    = 256

	defaultListLimit = 20
	maxListLimit     = 100
)

// LinkServiceImpl implements ports.LinkService. All status transitions are
// compare-and-swap updates committed in the same database transaction as
// the webhook outbox row they produce.
type LinkServiceImpl struct {
	linkRepo      ports.PaymentLinkRepository
	outboxRepo    ports.WebhookOutboxRepository
	transactor    ports.DBTransactor
	baseURL       string
	defaultExpiry time.Duration
	log           zerolog.Logger
}

// NewLinkService creates a new LinkServiceImpl.
func NewLinkService(
	linkRepo ports.PaymentLinkRepository,
	outboxRepo ports.WebhookOutboxRepository,
	transactor ports.DBTransactor,
	baseURL string,
	defaultExpiry time.Duration,
	log zerolog.Logger,
) *LinkServiceImpl {
	if defaultExpiry <= 0 {
		defaultExpiry = domain.DefaultExpiry
	}
	return &LinkServiceImpl{
		linkRepo:      linkRepo,
		outboxRepo:    outboxRepo,
		transactor:    transactor,
		baseURL:       baseURL,
		defaultExpiry: defaultExpiry,
		log:           log,
	}
}

// Create validates and persists a new pending payment link.
func (s *LinkServiceImpl) Create(ctx context.Context, merchantID uuid.UUID, req ports.CreateLinkRequest) (*domain.PaymentLink, error) {
	if req.Amount <= 0 {
		return nil, apperror.Validation("amount must be greater than zero")
	}
	if !domain.ValidCurrency(req.Currency) {
		return nil, apperror.Validation(fmt.Sprintf("unsupported currency %q", req.Currency))
	}

	expiry := s.defaultExpiry
	if req.ExpiresIn != nil {
		if *req.ExpiresIn <= 0 {
			return nil, apperror.Validation("expires_in must be positive")
		}
		expiry = time.Duration(*req.ExpiresIn) * time.Second
	}

	id, err := generateLinkID()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate link id: %w", err))
	}

	paymentURL := fmt.Sprintf("%s/pay/%s", s.baseURL, id)

	// QR generation failure is not fatal to link creation.
	qrCode, err := qrDataURL(paymentURL)
	if err != nil {
		s.log.Warn().Err(err).Str("link_id", id).Msg("qr code generation failed")
		qrCode = ""
	}

	now := time.Now().UTC()
	link := &domain.PaymentLink{
		ID:          id,
		MerchantID:  merchantID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		OrderID:     req.OrderID,
		Status:      domain.LinkStatusPending,
		PaymentURL:  paymentURL,
		QRCode:      qrCode,
		ExpiresAt:   now.Add(expiry),
		WebhookURL:  req.WebhookURL,
		RedirectURL: req.RedirectURL,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment link: %w", err))
	}

	s.log.Info().
		Str("link_id", link.ID).
		Str("merchant_id", merchantID.String()).
		Float64("amount", link.Amount).
		Str("currency", link.Currency).
		Msg("payment link created")

	return link, nil
}

// Get returns a link by id, flipping pending links past their deadline to
// expired first. The flip is a compare-and-swap: once expired the link never
// reverts, and the expiry webhook is enqueued at most once.
func (s *LinkServiceImpl) Get(ctx context.Context, id string) (*domain.PaymentLink, error) {
	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment link: %w", err))
	}
	if link == nil {
		return nil, apperror.ErrNotFound("payment link")
	}

	if link.IsExpiredAt(time.Now().UTC()) {
		if err := s.expire(ctx, link); err != nil {
			return nil, err
		}
		return s.reload(ctx, id)
	}

	return link, nil
}

// List returns the calling merchant's links, newest first. It never returns
// another merchant's records; the scoping lives in the repository query.
func (s *LinkServiceImpl) List(ctx context.Context, params ports.LinkListParams) ([]domain.PaymentLink, int64, error) {
	if params.Limit <= 0 {
		params.Limit = defaultListLimit
	}
	if params.Limit > maxListLimit {
		params.Limit = maxListLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	links, total, err := s.linkRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list payment links: %w", err))
	}
	return links, total, nil
}

// Cancel transitions an owned pending link to cancelled. Ownership is
// checked before status, so a foreign merchant always sees 403 and learns
// nothing about the link's state.
func (s *LinkServiceImpl) Cancel(ctx context.Context, id string, merchantID uuid.UUID) (*domain.PaymentLink, error) {
	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment link: %w", err))
	}
	if link == nil {
		return nil, apperror.ErrNotFound("payment link")
	}
	if link.MerchantID != merchantID {
		return nil, apperror.ErrOwnership()
	}
	if link.Status != domain.LinkStatusPending {
		return nil, apperror.ErrStateConflict(string(link.Status))
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ok, err := s.linkRepo.MarkCancelled(ctx, tx, id, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("cancel payment link: %w", err))
	}
	if !ok {
		// Lost the race: someone else moved the link first.
		return nil, s.conflictFor(ctx, id)
	}

	link.Status = domain.LinkStatusCancelled
	if err := s.enqueueEvent(ctx, tx, link, domain.EventPaymentCancelled); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("link_id", id).Msg("payment link cancelled")
	return s.reload(ctx, id)
}

// Verify applies the on-chain verifier's payment proof. Exactly one of any
// number of racing calls wins the pending->paid transition; losers receive
// a state conflict naming the committed status and enqueue nothing.
func (s *LinkServiceImpl) Verify(ctx context.Context, req ports.VerifyRequest) (*domain.PaymentLink, error) {
	link, err := s.linkRepo.GetByID(ctx, req.PaymentLinkID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment link: %w", err))
	}
	if link == nil {
		return nil, apperror.ErrNotFound("payment link")
	}
	if link.Status != domain.LinkStatusPending {
		return nil, apperror.ErrStateConflict(string(link.Status))
	}
	if req.PaidCurrency != link.Currency {
		return nil, apperror.ErrCurrencyMismatch(link.Currency, req.PaidCurrency)
	}
	if req.PaidAmount < link.Amount {
		return nil, apperror.ErrInsufficientAmount()
	}

	paidAt := time.Now().UTC()

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ok, err := s.linkRepo.MarkPaid(ctx, tx, link.ID, req.TransactionHash, paidAt)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark paid: %w", err))
	}
	if !ok {
		return nil, s.conflictFor(ctx, link.ID)
	}

	link.Status = domain.LinkStatusPaid
	link.PaidAt = &paidAt
	link.TransactionHash = &req.TransactionHash
	if err := s.enqueueEvent(ctx, tx, link, domain.EventPaymentCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("link_id", link.ID).
		Str("transaction_hash", req.TransactionHash).
		Float64("paid_amount", req.PaidAmount).
		Msg("payment verified")

	return s.reload(ctx, link.ID)
}

// expire performs the lazy pending->expired flip.
func (s *LinkServiceImpl) expire(ctx context.Context, link *domain.PaymentLink) error {
	now := time.Now().UTC()

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ok, err := s.linkRepo.MarkExpired(ctx, tx, link.ID, now)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("mark expired: %w", err))
	}
	if !ok {
		// A concurrent reader or verifier already moved the link.
		return nil
	}

	link.Status = domain.LinkStatusExpired
	if err := s.enqueueEvent(ctx, tx, link, domain.EventPaymentExpired); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("link_id", link.ID).Msg("payment link expired")
	return nil
}

// enqueueEvent writes the webhook outbox row for a transition, inside the
// same transaction. Links without a webhook URL enqueue nothing.
func (s *LinkServiceImpl) enqueueEvent(ctx context.Context, tx pgx.Tx, link *domain.PaymentLink, event string) error {
	if link.WebhookURL == nil || *link.WebhookURL == "" {
		return nil
	}

	payload, err := BuildEventPayload(link, event)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("build event payload: %w", err))
	}

	now := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		ID:            uuid.New(),
		PaymentLinkID: link.ID,
		MerchantID:    link.MerchantID,
		Event:         event,
		URL:           *link.WebhookURL,
		Payload:       payload,
		Status:        domain.DeliveryStatusPending,
		Attempt:       0,
		MaxAttempts:   MaxDeliveryAttempts,
		NextRetryAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.outboxRepo.Enqueue(ctx, tx, delivery); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue webhook: %w", err))
	}
	return nil
}

// conflictFor re-reads the link to name the status that won the race.
func (s *LinkServiceImpl) conflictFor(ctx context.Context, id string) error {
	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil || link == nil {
		return apperror.ErrStateConflict("updated")
	}
	return apperror.ErrStateConflict(string(link.Status))
}

func (s *LinkServiceImpl) reload(ctx context.Context, id string) (*domain.PaymentLink, error) {
	link, err := s.linkRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reload payment link: %w", err))
	}
	if link == nil {
		return nil, apperror.ErrNotFound("payment link")
	}
	return link, nil
}

// BuildEventPayload assembles the canonical (unsigned) webhook payload for
// a link event. Optional fields are omitted rather than sent as null so the
// receiver signs exactly what was sent.
func BuildEventPayload(link *domain.PaymentLink, event string) ([]byte, error) {
	fields := map[string]any{
		"event":           event,
		"payment_link_id": link.ID,
		"merchant_id":     link.MerchantID.String(),
		"amount":          link.Amount,
		"currency":        link.Currency,
	}
	if link.OrderID != "" {
		fields["order_id"] = link.OrderID
	}
	if link.TransactionHash != nil {
		fields["transaction_hash"] = *link.TransactionHash
	}
	if link.PaidAt != nil {
		fields["paid_at"] = link.PaidAt.UTC().Format(time.RFC3339)
	}
	if len(link.Metadata) > 0 {
		fields["metadata"] = link.Metadata
	}
	return CanonicalJSON(fields)
}

// generateLinkID returns an opaque pl_-prefixed token.
func generateLinkID() (string, error) {
	raw := make([]byte, linkIDRandBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "pl_" + hex.EncodeToString(raw), nil
}

// qrDataURL renders paymentURL as a PNG QR code base64 data URL.
func qrDataURL(paymentURL string) (string, error) {
	qr, err := qrcode.New(paymentURL, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("create qr code: %w", err)
	}
	png, err := qr.PNG(qrCodeSizePx)
	if err != nil {
		return "", fmt.Errorf("render qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
