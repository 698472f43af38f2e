package payment_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/adapters/payment"
	"studio/internal/application/payments"
)

// Sign produces a Stripe-Signature header for payload.
func sign(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

const completed = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "api_version": "2020-08-27",
  "data": {"object": {
    "id": "cs_test_abc",
    "object": "checkout.session",
    "payment_status": "paid",
    "amount_total": 8500,
    "payment_intent": "pi_abc",
    "metadata": {"purchase_type": "booking", "athlete_id": "A1"}
  }}
}`

func newProcessor() *payment.StripeProcessor {
	return payment.NewStripeProcessor(
		payment.Account{SecretKey: "sk_live_x", WebhookSecret: "whsec_live"},
		payment.Account{SecretKey: "sk_test_x", WebhookSecret: "whsec_test"},
		5*time.Second,
	)
}

func TestVerifyWebhookFallsBackToTestSecret(t *testing.T) {
	p := newProcessor()
	payload := []byte(completed)

	evt, err := p.VerifyWebhook(payload, sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payments.ModeTest, evt.Mode)
	assert.Equal(t, payments.EventCheckoutCompleted, evt.Type)
	require.NotNil(t, evt.Session)
	assert.Equal(t, "cs_test_abc", evt.Session.ID)
	assert.Equal(t, "pi_abc", evt.Session.PaymentIntentID)
	assert.True(t, evt.Session.IsPaid())
	assert.Equal(t, "booking", evt.Session.Metadata["purchase_type"])
}

func TestVerifyWebhookLiveSecret(t *testing.T) {
	p := newProcessor()
	payload := []byte(completed)

	evt, err := p.VerifyWebhook(payload, sign(payload, "whsec_live", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payments.ModeLive, evt.Mode)
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	p := newProcessor()
	payload := []byte(completed)

	_, err := p.VerifyWebhook(payload, sign(payload, "whsec_wrong", time.Now()))
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)

	_, err = p.VerifyWebhook(payload, sign(payload, "whsec_test", time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, payments.ErrInvalidSignature, "stale timestamps are rejected")
}

func TestUnconfiguredAccount(t *testing.T) {
	p := payment.NewStripeProcessor(payment.Account{SecretKey: "sk_live_x"}, payment.Account{}, time.Second)
	assert.ErrorIs(t, p.Ping(t.Context(), payments.ModeTest), payments.ErrNotConfigured)

	payload := []byte(completed)
	_, err := p.VerifyWebhook(payload, sign(payload, "whsec_test", time.Now()))
	assert.ErrorIs(t, err, payments.ErrNotConfigured)
}
