package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMpesaAdapter() *MpesaAdapter {
	return NewMpesaAdapter(MpesaConfig{
		BaseURL:        "https://aggregator.example.com",
		ShortCode:      "555111",
		APIKey:         "key",
		CallbackSecret: "cb_secret",
	})
}

func mpesaSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestDeriveReferenceIsDeterministic(t *testing.T) {
	ref1 := DeriveReference(42, "req-abc")
	ref2 := DeriveReference(42, "req-abc")
	assert.Equal(t, ref1, ref2)
	assert.Contains(t, ref1, "rtx-")
}

func TestDeriveReferenceChangesWithInput(t *testing.T) {
	assert.NotEqual(t, DeriveReference(42, "req-abc"), DeriveReference(43, "req-abc"))
	assert.NotEqual(t, DeriveReference(42, "req-abc"), DeriveReference(42, "req-abd"))
}

func TestMpesaChargeDerivesReferenceFromClientRequest(t *testing.T) {
	var got mpesaPushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(mpesaPushResponse{CheckoutID: "co_9", ResponseCode: 0})
	}))
	defer server.Close()

	a := NewMpesaAdapter(MpesaConfig{BaseURL: server.URL, ShortCode: "555111", APIKey: "key"})
	result, err := a.Charge(context.Background(), ChargeRequest{
		InvoiceID:        42,
		PaymentRef:       "rtx-pay-7",
		Amount:           25000,
		Currency:         "TZS",
		PhoneNumber:      "+255700000001",
		IdempotencyToken: "req-abc",
	})
	assert.NoError(t, err)
	assert.Equal(t, "co_9", result.GatewayTxID)
	assert.Equal(t, StatusPending, result.Status)
	assert.Equal(t, DeriveReference(42, "req-abc"), got.Reference)
}

func TestMpesaVerifyCallbackSignature(t *testing.T) {
	a := newTestMpesaAdapter()
	body := []byte(`{"callback_id":"cb_1"}`)

	assert.True(t, a.VerifyWebhookSignature(body, mpesaSign("cb_secret", body)))
	assert.False(t, a.VerifyWebhookSignature(body, mpesaSign("wrong", body)))
	assert.False(t, a.VerifyWebhookSignature(body, ""))
}

func TestMpesaParseCallbackChargeSucceeded(t *testing.T) {
	a := newTestMpesaAdapter()
	body := []byte(`{"callback_id":"cb_1","type":"stkpush.result","checkout_id":"co_1","result_code":0,"amount":25000,"currency":"TZS"}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "charge.succeeded", event.Type)
	assert.Equal(t, "mpesa", event.Gateway)
	assert.Equal(t, "cb_1", event.EventID)
	assert.Equal(t, "co_1", event.GatewayTxID)
	assert.Equal(t, int64(25000), event.Amount)
	assert.Equal(t, "TZS", event.Currency)
}

func TestMpesaParseCallbackChargeFailedCarriesReason(t *testing.T) {
	a := newTestMpesaAdapter()
	body := []byte(`{"callback_id":"cb_2","type":"stkpush.result","checkout_id":"co_2","result_code":1032,"result_description":"Request cancelled by user"}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "charge.failed", event.Type)
	assert.Equal(t, "Request cancelled by user", event.FailureReason)
}

func TestMpesaParseCallbackReversal(t *testing.T) {
	a := newTestMpesaAdapter()
	body := []byte(`{"callback_id":"cb_3","type":"reversal.result","checkout_id":"co_1","reversal_id":"rev_1","result_code":0,"amount":25000,"currency":"TZS"}`)

	event, err := a.ParseWebhook(body)
	assert.NoError(t, err)
	assert.Equal(t, "refund.succeeded", event.Type)
	assert.Equal(t, "rev_1", event.RefundTxID)
	assert.Equal(t, "co_1", event.GatewayTxID)
}

func TestMpesaParseCallbackRejectsMissingIds(t *testing.T) {
	a := newTestMpesaAdapter()
	_, err := a.ParseWebhook([]byte(`{"type":"stkpush.result","result_code":0}`))
	assert.Error(t, err)
}

func TestMpesaParseCallbackPassesThroughUnknownType(t *testing.T) {
	a := newTestMpesaAdapter()
	event, err := a.ParseWebhook([]byte(`{"callback_id":"cb_4","checkout_id":"co_4","type":"balance.result"}`))
	assert.NoError(t, err)
	assert.Equal(t, "balance.result", event.Type)
	assert.Equal(t, "cb_4", event.EventID)
}

func TestMpesaNormalizeError(t *testing.T) {
	a := newTestMpesaAdapter()
	assert.Equal(t, ErrCodeInsufficientFunds, a.normalizeError(1, "insufficient balance").Code)
	assert.Equal(t, ErrCodeCardDeclined, a.normalizeError(1032, "cancelled").Code)
	assert.Equal(t, ErrCodeCardDeclined, a.normalizeError(1037, "unreachable").Code)
	assert.Equal(t, ErrCodeInvalidRequest, a.normalizeError(400, "bad request").Code)
}
