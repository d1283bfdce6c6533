package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaymentLink_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status LinkStatus
		want   bool
	}{
		{"pending", LinkStatusPending, false},
		{"paid", LinkStatusPaid, true},
		{"expired", LinkStatusExpired, true},
		{"cancelled", LinkStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &PaymentLink{Status: tt.status}
			assert.Equal(t, tt.want, l.IsTerminal())
		})
	}
}

func TestPaymentLink_IsExpiredAt(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status LinkStatus
		at     time.Time
		want   bool
	}{
		{"pending before deadline", LinkStatusPending, deadline.Add(-time.Second), false},
		{"pending past deadline", LinkStatusPending, deadline.Add(time.Second), true},
		{"paid past deadline", LinkStatusPaid, deadline.Add(time.Hour), false},
		{"cancelled past deadline", LinkStatusCancelled, deadline.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &PaymentLink{Status: tt.status, ExpiresAt: deadline}
			assert.Equal(t, tt.want, l.IsExpiredAt(tt.at))
		})
	}
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency("PM"))
	assert.True(t, ValidCurrency("USDT"))
	assert.False(t, ValidCurrency("pm"))
	assert.False(t, ValidCurrency("DOGE"))
	assert.False(t, ValidCurrency(""))
}

func TestWebhookDelivery_Exhausted(t *testing.T) {
	d := &WebhookDelivery{Attempt: 5, MaxAttempts: 6}
	assert.False(t, d.Exhausted())
	d.Attempt = 6
	assert.True(t, d.Exhausted())
}

func TestLinkStatus_Constants(t *testing.T) {
	assert.Equal(t, LinkStatus("pending"), LinkStatusPending)
	assert.Equal(t, LinkStatus("paid"), LinkStatusPaid)
	assert.Equal(t, LinkStatus("expired"), LinkStatusExpired)
	assert.Equal(t, LinkStatus("cancelled"), LinkStatusCancelled)
}
