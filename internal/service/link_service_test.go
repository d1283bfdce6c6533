package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/internal/core/ports/mocks"
	"paylink-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx satisfies pgx.Tx via the embedded interface; only the methods the
// services actually call are overridden.
type mockTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	m.rolledBack = true
	return nil
}

type linkServiceFixture struct {
	svc        *LinkServiceImpl
	linkRepo   *mocks.MockPaymentLinkRepository
	outboxRepo *mocks.MockWebhookOutboxRepository
	transactor *mocks.MockDBTransactor
}

func newLinkServiceForTest(t *testing.T) *linkServiceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &linkServiceFixture{
		linkRepo:   mocks.NewMockPaymentLinkRepository(ctrl),
		outboxRepo: mocks.NewMockWebhookOutboxRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	f.svc = NewLinkService(f.linkRepo, f.outboxRepo, f.transactor, "https://pay.example.com", time.Hour, zerolog.Nop())
	return f
}

func strPtr(s string) *string { return &s }

func pendingLink(merchantID uuid.UUID) *domain.PaymentLink {
	return &domain.PaymentLink{
		ID:         "pl_0011223344556677889900aabbccddee",
		MerchantID: merchantID,
		Amount:     100,
		Currency:   "PM",
		OrderID:    "order-42",
		Status:     domain.LinkStatusPending,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
		WebhookURL: strPtr("https://merchant.example.com/hooks"),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestLinkService_Create(t *testing.T) {
	merchantID := uuid.New()

	t.Run("success", func(t *testing.T) {
		f := newLinkServiceForTest(t)

		var stored *domain.PaymentLink
		f.linkRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, l *domain.PaymentLink) error {
			stored = l
			return nil
		})

		link, err := f.svc.Create(context.Background(), merchantID, ports.CreateLinkRequest{
			Amount:   250.5,
			Currency: "USDT",
			OrderID:  "order-7",
		})
		require.NoError(t, err)
		require.NotNil(t, stored)

		assert.True(t, strings.HasPrefix(link.ID, "pl_"))
		assert.Equal(t, domain.LinkStatusPending, link.Status)
		assert.Equal(t, "https://pay.example.com/pay/"+link.ID, link.PaymentURL)
		assert.True(t, strings.HasPrefix(link.QRCode, "data:image/png;base64,"))
		assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), link.ExpiresAt, 5*time.Second)
	})

	t.Run("custom expiry", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		f.linkRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		expiresIn := int64(120)
		link, err := f.svc.Create(context.Background(), merchantID, ports.CreateLinkRequest{
			Amount:    1,
			Currency:  "ETH",
			ExpiresIn: &expiresIn,
		})
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC().Add(2*time.Minute), link.ExpiresAt, 5*time.Second)
	})

	t.Run("validation failures", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		negExpiry := int64(-5)

		tests := []struct {
			name string
			req  ports.CreateLinkRequest
		}{
			{"zero amount", ports.CreateLinkRequest{Amount: 0, Currency: "PM"}},
			{"negative amount", ports.CreateLinkRequest{Amount: -10, Currency: "PM"}},
			{"unknown currency", ports.CreateLinkRequest{Amount: 10, Currency: "DOGE"}},
			{"non-positive expiry", ports.CreateLinkRequest{Amount: 10, Currency: "PM", ExpiresIn: &negExpiry}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Create(context.Background(), merchantID, tt.req)
				var appErr *apperror.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, apperror.KindValidation, appErr.Kind)
			})
		}
	})
}

func TestLinkService_Get(t *testing.T) {
	merchantID := uuid.New()

	t.Run("pending link returned as-is", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)

		got, err := f.svc.Get(context.Background(), link.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusPending, got.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		f.linkRepo.EXPECT().GetByID(gomock.Any(), "pl_missing").Return(nil, nil)

		_, err := f.svc.Get(context.Background(), "pl_missing")
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindNotFound, appErr.Kind)
	})

	t.Run("lazy expiry flips pending past deadline and enqueues webhook", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		link.ExpiresAt = time.Now().UTC().Add(-time.Minute)

		expired := *link
		expired.Status = domain.LinkStatusExpired

		tx := &mockTx{}
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkExpired(gomock.Any(), tx, link.ID, gomock.Any()).Return(true, nil)
		f.outboxRepo.EXPECT().Enqueue(gomock.Any(), tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, d *domain.WebhookDelivery) error {
			assert.Equal(t, domain.EventPaymentExpired, d.Event)
			assert.Equal(t, link.ID, d.PaymentLinkID)
			return nil
		})
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&expired, nil)

		got, err := f.svc.Get(context.Background(), link.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusExpired, got.Status)
		assert.True(t, tx.committed)
	})

	t.Run("lost expiry race reads committed state", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		link.ExpiresAt = time.Now().UTC().Add(-time.Minute)

		paid := *link
		paid.Status = domain.LinkStatusPaid

		tx := &mockTx{}
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkExpired(gomock.Any(), tx, link.ID, gomock.Any()).Return(false, nil)
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&paid, nil)

		got, err := f.svc.Get(context.Background(), link.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusPaid, got.Status)
		assert.False(t, tx.committed)
	})
}

func TestLinkService_Cancel(t *testing.T) {
	merchantID := uuid.New()

	t.Run("success", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		cancelled := *link
		cancelled.Status = domain.LinkStatusCancelled

		tx := &mockTx{}
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkCancelled(gomock.Any(), tx, link.ID, merchantID).Return(true, nil)
		f.outboxRepo.EXPECT().Enqueue(gomock.Any(), tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, d *domain.WebhookDelivery) error {
			assert.Equal(t, domain.EventPaymentCancelled, d.Event)
			return nil
		})
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&cancelled, nil)

		got, err := f.svc.Cancel(context.Background(), link.ID, merchantID)
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusCancelled, got.Status)
		assert.True(t, tx.committed)
	})

	t.Run("foreign merchant gets ownership error before any state detail", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		link.Status = domain.LinkStatusPaid // even a terminal link leaks nothing

		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)

		_, err := f.svc.Cancel(context.Background(), link.ID, uuid.New())
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindOwnership, appErr.Kind)
	})

	t.Run("terminal link conflicts", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		link.Status = domain.LinkStatusPaid

		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)

		_, err := f.svc.Cancel(context.Background(), link.ID, merchantID)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindStateConflict, appErr.Kind)
		assert.Contains(t, appErr.Message, "paid")
	})

	t.Run("lost cancel race names winning status", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		paid := *link
		paid.Status = domain.LinkStatusPaid

		tx := &mockTx{}
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkCancelled(gomock.Any(), tx, link.ID, merchantID).Return(false, nil)
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&paid, nil)

		_, err := f.svc.Cancel(context.Background(), link.ID, merchantID)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindStateConflict, appErr.Kind)
		assert.Equal(t, "paid", appErr.Details["current_status"])
		assert.False(t, tx.committed)
	})
}

func TestLinkService_Verify(t *testing.T) {
	merchantID := uuid.New()

	verifyReq := func(link *domain.PaymentLink) ports.VerifyRequest {
		return ports.VerifyRequest{
			PaymentLinkID:   link.ID,
			TransactionHash: "0xdeadbeef",
			PaidAmount:      link.Amount,
			PaidCurrency:    link.Currency,
		}
	}

	t.Run("success marks paid and enqueues completed event", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		paid := *link
		paid.Status = domain.LinkStatusPaid

		tx := &mockTx{}
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkPaid(gomock.Any(), tx, link.ID, "0xdeadbeef", gomock.Any()).Return(true, nil)
		f.outboxRepo.EXPECT().Enqueue(gomock.Any(), tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, d *domain.WebhookDelivery) error {
			assert.Equal(t, domain.EventPaymentCompleted, d.Event)

			var fields map[string]any
			require.NoError(t, json.Unmarshal(d.Payload, &fields))
			assert.Equal(t, "0xdeadbeef", fields["transaction_hash"])
			assert.Equal(t, link.ID, fields["payment_link_id"])
			assert.NotContains(t, fields, "signature", "stored payload is unsigned")
			return nil
		})
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&paid, nil)

		got, err := f.svc.Verify(context.Background(), verifyReq(link))
		require.NoError(t, err)
		assert.Equal(t, domain.LinkStatusPaid, got.Status)
		assert.True(t, tx.committed)
	})

	t.Run("overpayment accepted", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		paid := *link
		paid.Status = domain.LinkStatusPaid

		tx := &mockTx{}
		req := verifyReq(link)
		req.PaidAmount = link.Amount * 2

		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkPaid(gomock.Any(), tx, link.ID, gomock.Any(), gomock.Any()).Return(true, nil)
		f.outboxRepo.EXPECT().Enqueue(gomock.Any(), tx, gomock.Any()).Return(nil)
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&paid, nil)

		_, err := f.svc.Verify(context.Background(), req)
		require.NoError(t, err)
	})

	t.Run("insufficient amount", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		req := verifyReq(link)
		req.PaidAmount = link.Amount - 0.01

		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)

		_, err := f.svc.Verify(context.Background(), req)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindValidation, appErr.Kind)
		assert.Contains(t, appErr.Message, "insufficient")
	})

	t.Run("currency mismatch even when value would suffice", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		req := verifyReq(link)
		req.PaidCurrency = "ETH"
		req.PaidAmount = link.Amount * 100

		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)

		_, err := f.svc.Verify(context.Background(), req)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindValidation, appErr.Kind)
	})

	t.Run("non-pending link conflicts naming status", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		link.Status = domain.LinkStatusExpired

		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)

		_, err := f.svc.Verify(context.Background(), verifyReq(link))
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindStateConflict, appErr.Kind)
		assert.Contains(t, appErr.Message, "expired")
	})

	t.Run("losing the paid race enqueues nothing", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		link := pendingLink(merchantID)
		paid := *link
		paid.Status = domain.LinkStatusPaid

		tx := &mockTx{}
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(link, nil)
		f.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		f.linkRepo.EXPECT().MarkPaid(gomock.Any(), tx, link.ID, gomock.Any(), gomock.Any()).Return(false, nil)
		f.linkRepo.EXPECT().GetByID(gomock.Any(), link.ID).Return(&paid, nil)

		_, err := f.svc.Verify(context.Background(), verifyReq(link))
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindStateConflict, appErr.Kind)
		assert.False(t, tx.committed)
	})
}

func TestLinkService_List(t *testing.T) {
	merchantID := uuid.New()

	t.Run("clamps pagination", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		f.linkRepo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p ports.LinkListParams) ([]domain.PaymentLink, int64, error) {
			assert.Equal(t, 100, p.Limit)
			assert.Equal(t, 0, p.Offset)
			return nil, 0, nil
		})

		_, _, err := f.svc.List(context.Background(), ports.LinkListParams{
			MerchantID: merchantID,
			Limit:      5000,
			Offset:     -3,
		})
		require.NoError(t, err)
	})

	t.Run("defaults limit", func(t *testing.T) {
		f := newLinkServiceForTest(t)
		f.linkRepo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p ports.LinkListParams) ([]domain.PaymentLink, int64, error) {
			assert.Equal(t, defaultListLimit, p.Limit)
			return []domain.PaymentLink{*pendingLink(merchantID)}, 1, nil
		})

		links, total, err := f.svc.List(context.Background(), ports.LinkListParams{MerchantID: merchantID})
		require.NoError(t, err)
		assert.Len(t, links, 1)
		assert.EqualValues(t, 1, total)
	})
}

func TestBuildEventPayload(t *testing.T) {
	merchantID := uuid.New()
	link := pendingLink(merchantID)
	paidAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	link.PaidAt = &paidAt
	link.TransactionHash = strPtr("0xabc")
	link.Metadata = map[string]string{"invoice": "INV-9"}

	payload, err := BuildEventPayload(link, domain.EventPaymentCompleted)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.Equal(t, domain.EventPaymentCompleted, fields["event"])
	assert.Equal(t, merchantID.String(), fields["merchant_id"])
	assert.Equal(t, "2026-08-01T12:00:00Z", fields["paid_at"])
	assert.Equal(t, map[string]any{"invoice": "INV-9"}, fields["metadata"])

	// optional fields are omitted, not null
	bare := pendingLink(merchantID)
	bare.OrderID = ""
	payload, err = BuildEventPayload(bare, domain.EventPaymentExpired)
	require.NoError(t, err)
	fields = nil
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.NotContains(t, fields, "order_id")
	assert.NotContains(t, fields, "paid_at")
	assert.NotContains(t, fields, "transaction_hash")
}
