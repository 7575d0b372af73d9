package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestStripeAdapter() *StripeAdapter {
	return NewStripeAdapter(StripeConfig{
		BaseURL:       "https://api.example.com",
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
	})
}

func stripeSign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifyWebhookSignature(t *testing.T) {
	a := newTestStripeAdapter()
	body := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)

	header := stripeSign("whsec_test", time.Now().Unix(), body)
	assert.True(t, a.VerifyWebhookSignature(body, header))
}

func TestStripeVerifyWebhookSignatureWrongSecret(t *testing.T) {
	a := newTestStripeAdapter()
	body := []byte(`{"id":"evt_1"}`)

	header := stripeSign("whsec_other", time.Now().Unix(), body)
	assert.False(t, a.VerifyWebhookSignature(body, header))
}

func TestStripeVerifyWebhookSignatureTamperedBody(t *testing.T) {
	a := newTestStripeAdapter()
	header := stripeSign("whsec_test", time.Now().Unix(), []byte(`{"amount":100}`))
	assert.False(t, a.VerifyWebhookSignature([]byte(`{"amount":10000}`), header))
}

func TestStripeVerifyWebhookSignatureExpiredTimestamp(t *testing.T) {
	a := newTestStripeAdapter()
	body := []byte(`{"id":"evt_1"}`)

	old := time.Now().Add(-10 * time.Minute).Unix()
	header := stripeSign("whsec_test", old, body)
	assert.False(t, a.VerifyWebhookSignature(body, header))
}

func TestStripeVerifyWebhookSignatureGarbageHeader(t *testing.T) {
	a := newTestStripeAdapter()
	assert.False(t, a.VerifyWebhookSignature([]byte(`{}`), ""))
	assert.False(t, a.VerifyWebhookSignature([]byte(`{}`), "not-a-signature"))
	assert.False(t, a.VerifyWebhookSignature([]byte(`{}`), "t=abc,v1=def"))
}

func TestStripeParseWebhookChargeSucceeded(t *testing.T) {
	a := newTestStripeAdapter()
	body := []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1","amount":15000,"currency":"usd"}}}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "charge.succeeded", event.Type)
	assert.Equal(t, "stripe", event.Gateway)
	assert.Equal(t, "evt_1", event.EventID)
	assert.Equal(t, "ch_1", event.GatewayTxID)
	assert.Equal(t, int64(15000), event.Amount)
	assert.Equal(t, "USD", event.Currency)
	assert.NotEmpty(t, event.PayloadHash)
}

func TestStripeParseWebhookChargeFailedCarriesReason(t *testing.T) {
	a := newTestStripeAdapter()
	body := []byte(`{"id":"evt_2","type":"charge.failed","data":{"object":{"id":"ch_2","amount":5000,"currency":"usd","failure_message":"Your card was declined."}}}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "charge.failed", event.Type)
	assert.Equal(t, "Your card was declined.", event.FailureReason)
}

func TestStripeParseWebhookRefund(t *testing.T) {
	a := newTestStripeAdapter()
	body := []byte(`{"id":"evt_3","type":"refund.succeeded","data":{"object":{"id":"re_1","charge":"ch_1","amount":4000,"currency":"usd"}}}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "refund.succeeded", event.Type)
	assert.Equal(t, "re_1", event.RefundTxID)
	assert.Equal(t, "ch_1", event.GatewayTxID)
}

func TestStripeParseWebhookPassesThroughUnknownType(t *testing.T) {
	a := newTestStripeAdapter()
	event, err := a.ParseWebhook([]byte(`{"id":"evt_4","type":"customer.created","data":{"object":{"id":"cus_1"}}}`))
	assert.NoError(t, err)
	assert.Equal(t, "customer.created", event.Type)
	assert.Equal(t, "evt_4", event.EventID)
}

func TestStripeParseWebhookRejectsMalformedPayload(t *testing.T) {
	a := newTestStripeAdapter()
	_, err := a.ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
	_, err = a.ParseWebhook([]byte(`{}`))
	assert.Error(t, err)
}

func TestStripeNormalizeError(t *testing.T) {
	a := newTestStripeAdapter()

	apiErr := stripeError{}
	apiErr.Error.Code = "card_declined"
	apiErr.Error.DeclineCode = "insufficient_funds"
	assert.Equal(t, ErrCodeInsufficientFunds, a.normalizeError(apiErr).Code)

	apiErr = stripeError{}
	apiErr.Error.Code = "expired_card"
	assert.Equal(t, ErrCodeCardDeclined, a.normalizeError(apiErr).Code)

	apiErr = stripeError{}
	apiErr.Error.Code = "rate_limit"
	assert.Equal(t, ErrCodeGatewayUnavailable, a.normalizeError(apiErr).Code)

	apiErr = stripeError{}
	apiErr.Error.Code = "parameter_missing"
	assert.Equal(t, ErrCodeInvalidRequest, a.normalizeError(apiErr).Code)
}

func TestStripeSyncStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, stripeSyncStatus("succeeded"))
	assert.Equal(t, StatusFailed, stripeSyncStatus("failed"))
	assert.Equal(t, StatusPending, stripeSyncStatus("pending"))
}
