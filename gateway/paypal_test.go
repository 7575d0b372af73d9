package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPaypalAdapter() *PaypalAdapter {
	return NewPaypalAdapter(PaypalConfig{
		BaseURL:       "https://wallet.example.com",
		ClientID:      "client",
		APIKey:        "key",
		WebhookSecret: "wh_secret",
	})
}

func paypalSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestPaypalVerifyWebhookSignature(t *testing.T) {
	a := newTestPaypalAdapter()
	body := []byte(`{"event_id":"WH-1"}`)

	assert.True(t, a.VerifyWebhookSignature(body, paypalSign("wh_secret", body)))
	assert.False(t, a.VerifyWebhookSignature(body, paypalSign("other", body)))
	assert.False(t, a.VerifyWebhookSignature(body, ""))
}

func TestPaypalParseWebhookCaptureCompleted(t *testing.T) {
	a := newTestPaypalAdapter()
	body := []byte(`{"event_id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"capture_id":"cap_1","amount":30000,"currency":"USD"}}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "charge.succeeded", event.Type)
	assert.Equal(t, "paypal", event.Gateway)
	assert.Equal(t, "WH-1", event.EventID)
	assert.Equal(t, "cap_1", event.GatewayTxID)
	assert.Equal(t, int64(30000), event.Amount)
}

func TestPaypalParseWebhookRefundCompleted(t *testing.T) {
	a := newTestPaypalAdapter()
	body := []byte(`{"event_id":"WH-2","event_type":"PAYMENT.REFUND.COMPLETED","resource":{"capture_id":"cap_1","refund_id":"ref_1","amount":10000,"currency":"USD"}}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "refund.succeeded", event.Type)
	assert.Equal(t, "ref_1", event.RefundTxID)
	assert.Equal(t, "cap_1", event.GatewayTxID)
}

func TestPaypalParseWebhookPassesThroughUnknownType(t *testing.T) {
	a := newTestPaypalAdapter()
	event, err := a.ParseWebhook([]byte(`{"event_id":"WH-3","event_type":"BILLING.PLAN.CREATED","resource":{}}`))
	assert.NoError(t, err)
	assert.Equal(t, "BILLING.PLAN.CREATED", event.Type)
	assert.Equal(t, "WH-3", event.EventID)
}

func TestPaypalParseWebhookRejectsMissingEventId(t *testing.T) {
	a := newTestPaypalAdapter()
	_, err := a.ParseWebhook([]byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{}}`))
	assert.Error(t, err)
}

func TestPaypalSyncStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, paypalSyncStatus("COMPLETED"))
	assert.Equal(t, StatusFailed, paypalSyncStatus("DECLINED"))
	assert.Equal(t, StatusFailed, paypalSyncStatus("FAILED"))
	assert.Equal(t, StatusPending, paypalSyncStatus("PENDING"))
}
