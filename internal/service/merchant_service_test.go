package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports/mocks"
	"paylink-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func newMerchantServiceForTest(t *testing.T) (*merchantService, *mocks.MockMerchantRepository, *mocks.MockSecretCipher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMerchantRepository(ctrl)
	cipher := mocks.NewMockSecretCipher(ctrl)
	svc := NewMerchantService(repo, cipher, zerolog.Nop()).(*merchantService)
	return svc, repo, cipher
}

func TestMerchantService_IssueKey(t *testing.T) {
	t.Run("success discloses key and secret once", func(t *testing.T) {
		svc, repo, cipher := newMerchantServiceForTest(t)

		var stored *domain.Merchant
		cipher.EXPECT().Encrypt(gomock.Any()).DoAndReturn(func(plaintext string) (string, error) {
			assert.True(t, strings.HasPrefix(plaintext, "whsec_"))
			return "enc:" + plaintext, nil
		})
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *domain.Merchant) error {
			stored = m
			return nil
		})

		issued, err := svc.IssueKey(context.Background(), "0xabc123", "Acme Store")
		require.NoError(t, err)
		require.NotNil(t, stored)

		assert.True(t, strings.HasPrefix(issued.APIKey, "pk_"))
		assert.True(t, strings.HasPrefix(issued.WebhookSecret, "whsec_"))
		assert.Equal(t, stored.ID, issued.MerchantID)

		// only the hash and the encrypted secret are persisted
		assert.NotContains(t, stored.APIKeyHash, issued.APIKey)
		assert.Equal(t, "enc:"+issued.WebhookSecret, stored.WebhookSecretEnc)
		assert.Equal(t, issued.APIKey[:len("pk_")+prefixHandleLen], stored.KeyPrefix)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.APIKeyHash), []byte(issued.APIKey)))
	})

	t.Run("blank inputs rejected", func(t *testing.T) {
		svc, _, _ := newMerchantServiceForTest(t)

		for _, args := range [][2]string{{"", "Acme"}, {"0xabc", ""}, {"   ", "Acme"}} {
			_, err := svc.IssueKey(context.Background(), args[0], args[1])
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.KindValidation, appErr.Kind)
		}
	})

	t.Run("repo failure surfaces as internal", func(t *testing.T) {
		svc, repo, cipher := newMerchantServiceForTest(t)
		cipher.EXPECT().Encrypt(gomock.Any()).Return("enc", nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

		_, err := svc.IssueKey(context.Background(), "0xabc", "Acme")
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindInternal, appErr.Kind)
	})
}

func TestMerchantService_RotateKey(t *testing.T) {
	t.Run("replaces credentials", func(t *testing.T) {
		svc, repo, cipher := newMerchantServiceForTest(t)
		merchantID := uuid.New()
		existing := &domain.Merchant{
			ID:         merchantID,
			KeyPrefix:  "pk_oldpref1",
			APIKeyHash: "old-hash",
		}

		repo.EXPECT().GetByID(gomock.Any(), merchantID).Return(existing, nil)
		cipher.EXPECT().Encrypt(gomock.Any()).Return("enc-new", nil)
		repo.EXPECT().Update(gomock.Any(), existing).Return(nil)

		issued, err := svc.RotateKey(context.Background(), merchantID)
		require.NoError(t, err)

		assert.Equal(t, merchantID, issued.MerchantID)
		assert.NotEqual(t, "old-hash", existing.APIKeyHash)
		assert.NotEqual(t, "pk_oldpref1", existing.KeyPrefix)
		assert.Equal(t, "enc-new", existing.WebhookSecretEnc)
	})

	t.Run("unknown merchant", func(t *testing.T) {
		svc, repo, _ := newMerchantServiceForTest(t)
		repo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := svc.RotateKey(context.Background(), uuid.New())
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindNotFound, appErr.Kind)
	})
}

func TestMerchantService_Authenticate(t *testing.T) {
	apiKey, prefix, err := generateAPIKey()
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	require.NoError(t, err)

	merchant := &domain.Merchant{
		ID:         uuid.New(),
		KeyPrefix:  prefix,
		APIKeyHash: string(hash),
	}

	t.Run("valid key", func(t *testing.T) {
		svc, repo, _ := newMerchantServiceForTest(t)
		repo.EXPECT().GetByKeyPrefix(gomock.Any(), prefix).Return(merchant, nil)

		got, err := svc.Authenticate(context.Background(), apiKey)
		require.NoError(t, err)
		assert.Equal(t, merchant.ID, got.ID)
	})

	t.Run("missing key is unauthorized kind", func(t *testing.T) {
		svc, _, _ := newMerchantServiceForTest(t)
		_, err := svc.Authenticate(context.Background(), "")
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindUnauthorized, appErr.Kind)
	})

	t.Run("malformed key", func(t *testing.T) {
		svc, _, _ := newMerchantServiceForTest(t)
		for _, key := range []string{"sk_wrongprefix", "pk_short"} {
			_, err := svc.Authenticate(context.Background(), key)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.KindInvalidAPIKey, appErr.Kind)
		}
	})

	t.Run("unknown prefix", func(t *testing.T) {
		svc, repo, _ := newMerchantServiceForTest(t)
		repo.EXPECT().GetByKeyPrefix(gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := svc.Authenticate(context.Background(), apiKey)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindInvalidAPIKey, appErr.Kind)
	})

	t.Run("prefix match but hash mismatch", func(t *testing.T) {
		svc, repo, _ := newMerchantServiceForTest(t)
		otherKey := prefix + strings.Repeat("x", 35) // same prefix, different body
		repo.EXPECT().GetByKeyPrefix(gomock.Any(), prefix).Return(merchant, nil)

		_, err := svc.Authenticate(context.Background(), otherKey)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindInvalidAPIKey, appErr.Kind)
	})
}

func TestGenerateAPIKey_PrefixDerivation(t *testing.T) {
	apiKey, prefix, err := generateAPIKey()
	require.NoError(t, err)

	derived, ok := keyPrefixOf(apiKey)
	require.True(t, ok)
	assert.Equal(t, prefix, derived)

	// two issues never collide on the full key
	other, _, err := generateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, apiKey, other)
}
