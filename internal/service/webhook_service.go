package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// deliveryRetrySchedule spaces redelivery attempts after a failure. The
// attempt number indexes into it; attempts beyond the table dead-letter.
var deliveryRetrySchedule = []time.Duration{
	15 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// MaxDeliveryAttempts is the total delivery budget: the first attempt plus
// one retry per schedule slot.
var MaxDeliveryAttempts = len(deliveryRetrySchedule) + 1

// claimLease is how far ClaimDue pushes a claimed row's retry time forward,
// keeping concurrent workers off it while this one delivers.
const claimLease = time.Minute

const (
	// HeaderSignature carries the hex HMAC-SHA256 of the request body.
	HeaderSignature = "X-PM-Signature"
	// HeaderEvent carries the event type for cheap routing on the receiver.
	HeaderEvent = "X-PM-Event"
)

// HTTPClient abstracts the outbound HTTP client for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookDispatcher drains the webhook outbox: it claims due deliveries,
// signs them with the owning merchant's secret and POSTs them, retrying on
// the schedule until success or dead-letter.
type WebhookDispatcher struct {
	outboxRepo   ports.WebhookOutboxRepository
	merchantRepo ports.MerchantRepository
	cipher       ports.SecretCipher
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	pollInterval time.Duration
	batchSize    int
	log          zerolog.Logger
}

// NewWebhookDispatcher creates a new WebhookDispatcher.
func NewWebhookDispatcher(
	outboxRepo ports.WebhookOutboxRepository,
	merchantRepo ports.MerchantRepository,
	cipher ports.SecretCipher,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	pollInterval time.Duration,
	batchSize int,
	log zerolog.Logger,
) *WebhookDispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &WebhookDispatcher{
		outboxRepo:   outboxRepo,
		merchantRepo: merchantRepo,
		cipher:       cipher,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		log:          log,
	}
}

// Run polls the outbox until ctx is cancelled. Intended to run as a single
// goroutine per process; multiple processes coexist via ClaimDue's lease.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.log.Info().
		Dur("poll_interval", d.pollInterval).
		Int("batch_size", d.batchSize).
		Msg("webhook dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("webhook dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.DispatchDue(ctx); err != nil {
				d.log.Error().Err(err).Msg("dispatch cycle failed")
			}
		}
	}
}

// DispatchDue claims and delivers one batch of due webhooks.
func (d *WebhookDispatcher) DispatchDue(ctx context.Context) error {
	deliveries, err := d.outboxRepo.ClaimDue(ctx, time.Now().UTC(), claimLease, d.batchSize)
	if err != nil {
		return fmt.Errorf("claim due deliveries: %w", err)
	}

	for i := range deliveries {
		d.deliver(ctx, &deliveries[i])
	}
	return nil
}

// deliver performs a single attempt against the merchant endpoint.
func (d *WebhookDispatcher) deliver(ctx context.Context, delivery *domain.WebhookDelivery) {
	delivery.Attempt++

	body, signature, err := d.signedBody(ctx, delivery)
	if err != nil {
		d.fail(ctx, delivery, nil, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(body))
	if err != nil {
		d.fail(ctx, delivery, nil, fmt.Errorf("build request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, delivery.Event)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.fail(ctx, delivery, nil, fmt.Errorf("post webhook: %w", err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := d.outboxRepo.MarkDelivered(ctx, delivery.ID, resp.StatusCode); err != nil {
			d.log.Error().Err(err).
				Str("delivery_id", delivery.ID.String()).
				Msg("mark delivered failed")
			return
		}
		d.log.Info().
			Str("delivery_id", delivery.ID.String()).
			Str("event", delivery.Event).
			Int("attempt", delivery.Attempt).
			Int("http_status", resp.StatusCode).
			Msg("webhook delivered")
		return
	}

	d.fail(ctx, delivery, &resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode))
}

// signedBody decrypts the merchant secret, signs the stored payload and
// splices the signature into the body so receivers can verify over the
// original fields.
func (d *WebhookDispatcher) signedBody(ctx context.Context, delivery *domain.WebhookDelivery) ([]byte, string, error) {
	merchant, err := d.merchantRepo.GetByID(ctx, delivery.MerchantID)
	if err != nil {
		return nil, "", fmt.Errorf("load merchant: %w", err)
	}
	if merchant == nil {
		return nil, "", fmt.Errorf("merchant %s not found", delivery.MerchantID)
	}

	secret, err := d.cipher.Decrypt(merchant.WebhookSecretEnc)
	if err != nil {
		return nil, "", fmt.Errorf("decrypt webhook secret: %w", err)
	}

	signature := d.sigSvc.Sign(secret, delivery.Payload)

	var fields map[string]any
	if err := json.Unmarshal(delivery.Payload, &fields); err != nil {
		return nil, "", fmt.Errorf("decode stored payload: %w", err)
	}
	fields["signature"] = signature

	body, err := CanonicalJSON(fields)
	if err != nil {
		return nil, "", fmt.Errorf("encode signed payload: %w", err)
	}
	return body, signature, nil
}

// fail records a failed attempt, scheduling a retry or dead-lettering when
// the budget is spent.
func (d *WebhookDispatcher) fail(ctx context.Context, delivery *domain.WebhookDelivery, httpStatus *int, cause error) {
	msg := cause.Error()
	delivery.HTTPStatus = httpStatus
	delivery.LastError = &msg
	delivery.UpdatedAt = time.Now().UTC()

	if delivery.Exhausted() {
		delivery.Status = domain.DeliveryStatusDead
		d.log.Warn().
			Str("delivery_id", delivery.ID.String()).
			Str("event", delivery.Event).
			Int("attempt", delivery.Attempt).
			Err(cause).
			Msg("webhook dead-lettered")
	} else {
		backoff := deliveryRetrySchedule[delivery.Attempt-1]
		delivery.NextRetryAt = time.Now().UTC().Add(backoff)
		d.log.Warn().
			Str("delivery_id", delivery.ID.String()).
			Str("event", delivery.Event).
			Int("attempt", delivery.Attempt).
			Dur("retry_in", backoff).
			Err(cause).
			Msg("webhook attempt failed")
	}

	if err := d.outboxRepo.RecordFailure(ctx, delivery); err != nil {
		d.log.Error().Err(err).
			Str("delivery_id", delivery.ID.String()).
			Msg("record failure failed")
	}
}
