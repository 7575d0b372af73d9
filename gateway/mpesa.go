package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type MpesaConfig struct {
	BaseURL        string
	ShortCode      string
	APIKey         string
	CallbackSecret string
	RequestTimeout time.Duration
}

// MpesaAdapter implements Adapter for a mobile-money aggregator. The
// aggregator is callback-only: an STK push is accepted with a checkout id
// and the charge outcome always arrives through the callback. The API has
// no native idempotency support, so the external reference is derived
// deterministically from the invoice and client request; the aggregator
// rejects a duplicate reference for an in-flight push.
type MpesaAdapter struct {
	cfg    MpesaConfig
	client *http.Client
}

func NewMpesaAdapter(cfg MpesaConfig) *MpesaAdapter {
	return &MpesaAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (a *MpesaAdapter) Name() string { return "mpesa" }

// DeriveReference builds the deterministic external reference used in place
// of a gateway idempotency token.
func DeriveReference(invoiceID int64, clientRequestID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", invoiceID, clientRequestID)))
	return "rtx-" + hex.EncodeToString(sum[:12])
}

type mpesaPushRequest struct {
	ShortCode   string `json:"short_code"`
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
	Description string `json:"description,omitempty"`
}

type mpesaPushResponse struct {
	CheckoutID   string `json:"checkout_id"`
	ResponseCode int    `json:"response_code"`
	ResponseDesc string `json:"response_description"`
}

func (a *MpesaAdapter) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	reference := DeriveReference(req.InvoiceID, req.IdempotencyToken)
	push := mpesaPushRequest{
		ShortCode:   a.cfg.ShortCode,
		Reference:   reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PhoneNumber: req.PhoneNumber,
		Description: req.Description,
	}
	var result mpesaPushResponse
	if err := a.do(ctx, http.MethodPost, "/v1/stkpush", push, &result); err != nil {
		return ChargeResult{}, err
	}
	if result.ResponseCode != 0 {
		return ChargeResult{}, a.normalizeError(result.ResponseCode, result.ResponseDesc)
	}
	// Outcome arrives via callback only.
	return ChargeResult{GatewayTxID: result.CheckoutID, Status: StatusPending}, nil
}

type mpesaReversalRequest struct {
	ShortCode  string `json:"short_code"`
	CheckoutID string `json:"checkout_id"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference"`
}

func (a *MpesaAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, idempotencyToken string) (RefundResult, error) {
	reversal := mpesaReversalRequest{
		ShortCode:  a.cfg.ShortCode,
		CheckoutID: gatewayTxID,
		Amount:     amount,
		Reference:  idempotencyToken,
	}
	var result mpesaPushResponse
	if err := a.do(ctx, http.MethodPost, "/v1/reversals", reversal, &result); err != nil {
		return RefundResult{}, err
	}
	if result.ResponseCode != 0 {
		return RefundResult{}, a.normalizeError(result.ResponseCode, result.ResponseDesc)
	}
	return RefundResult{RefundTxID: result.CheckoutID, Status: StatusPending}, nil
}

type mpesaStatusResponse struct {
	CheckoutID string `json:"checkout_id"`
	ResultCode int    `json:"result_code"`
	ResultDesc string `json:"result_description"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

func (a *MpesaAdapter) LookupCharge(ctx context.Context, gatewayTxID string) (Event, error) {
	var result mpesaStatusResponse
	if err := a.do(ctx, http.MethodGet, "/v1/transactions/"+gatewayTxID, nil, &result); err != nil {
		return Event{}, err
	}
	eventType := "charge.pending"
	switch {
	case result.ResultCode == 0:
		eventType = "charge.succeeded"
	case result.ResultCode > 0:
		eventType = "charge.failed"
	}
	return Event{
		Type:        eventType,
		Gateway:     a.Name(),
		EventID:     fmt.Sprintf("lookup_%s_%d", result.CheckoutID, result.ResultCode),
		GatewayTxID: result.CheckoutID,
		Amount:      result.Amount,
		Currency:    result.Currency,
		ReceivedAt:  time.Now(),
	}, nil
}

func (a *MpesaAdapter) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return NewError(ErrCodeInvalidRequest, a.Name(), err.Error())
		}
		body = bytes.NewReader(encoded)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return NewError(ErrCodeInvalidRequest, a.Name(), err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return NewError(ErrCodeGatewayUnavailable, a.Name(), err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(ErrCodeGatewayUnavailable, a.Name(), err.Error())
	}
	if resp.StatusCode >= 500 {
		return NewError(ErrCodeGatewayUnavailable, a.Name(), fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return NewError(ErrCodeInvalidRequest, a.Name(), fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	}
	return json.Unmarshal(respBody, out)
}

// Aggregator result codes: 1 = insufficient balance, 1032 = cancelled by
// subscriber, 1037 = unreachable handset.
func (a *MpesaAdapter) normalizeError(code int, desc string) *Error {
	switch code {
	case 1:
		return NewError(ErrCodeInsufficientFunds, a.Name(), desc)
	case 1032, 1037:
		return NewError(ErrCodeCardDeclined, a.Name(), desc)
	default:
		return NewError(ErrCodeInvalidRequest, a.Name(), desc)
	}
}

func (a *MpesaAdapter) SignatureHeader() string { return "X-Callback-Signature" }

// VerifyWebhookSignature checks a hex HMAC-SHA256 of the raw body keyed
// with the callback secret shared with the aggregator.
func (a *MpesaAdapter) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.CallbackSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

type mpesaCallbackPayload struct {
	CallbackID string `json:"callback_id"`
	Type       string `json:"type"`
	CheckoutID string `json:"checkout_id"`
	ReversalID string `json:"reversal_id"`
	ResultCode int    `json:"result_code"`
	ResultDesc string `json:"result_description"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

func (a *MpesaAdapter) ParseWebhook(rawBody []byte) (Event, error) {
	var payload mpesaCallbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return Event{}, NewError(ErrCodeInvalidRequest, a.Name(), "malformed callback payload: "+err.Error())
	}
	if payload.CallbackID == "" || payload.CheckoutID == "" {
		return Event{}, NewError(ErrCodeInvalidRequest, a.Name(), "callback payload missing callback_id or checkout_id")
	}

	event := Event{
		Gateway:     a.Name(),
		EventID:     payload.CallbackID,
		GatewayTxID: payload.CheckoutID,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		PayloadHash: hashPayload(rawBody),
		ReceivedAt:  time.Now(),
	}
	switch payload.Type {
	case "stkpush.result":
		if payload.ResultCode == 0 {
			event.Type = "charge.succeeded"
		} else {
			event.Type = "charge.failed"
			event.FailureReason = payload.ResultDesc
		}
	case "reversal.result":
		event.RefundTxID = payload.ReversalID
		if payload.ResultCode == 0 {
			event.Type = "refund.succeeded"
		} else {
			event.Type = "refund.failed"
		}
	default:
		// Authentic but irrelevant to us. Passed through under the raw type
		// for the caller to ack.
		event.Type = payload.Type
	}
	return event, nil
}
