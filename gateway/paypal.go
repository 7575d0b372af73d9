package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type PaypalConfig struct {
	BaseURL        string
	ClientID       string
	APIKey         string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// PaypalAdapter implements Adapter for a wallet-style gateway. Captures
// confirm synchronously; refunds may complete asynchronously depending on
// the wallet's funding source.
type PaypalAdapter struct {
	cfg    PaypalConfig
	client *http.Client
}

func NewPaypalAdapter(cfg PaypalConfig) *PaypalAdapter {
	return &PaypalAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (a *PaypalAdapter) Name() string { return "paypal" }

type paypalCaptureRequest struct {
	ReferenceID string `json:"reference_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

type paypalCaptureResponse struct {
	CaptureID string `json:"capture_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason,omitempty"`
}

func (a *PaypalAdapter) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	capture := paypalCaptureRequest{
		ReferenceID: req.PaymentRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		RequestID:   req.IdempotencyToken,
	}
	var result paypalCaptureResponse
	if err := a.do(ctx, http.MethodPost, "/v2/captures", capture, &result); err != nil {
		return ChargeResult{}, err
	}
	return ChargeResult{GatewayTxID: result.CaptureID, Status: paypalSyncStatus(result.Status)}, nil
}

type paypalRefundRequest struct {
	CaptureID string `json:"capture_id"`
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *PaypalAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, idempotencyToken string) (RefundResult, error) {
	var result paypalCaptureResponse
	refund := paypalRefundRequest{CaptureID: gatewayTxID, Amount: amount, RequestID: idempotencyToken}
	if err := a.do(ctx, http.MethodPost, "/v2/refunds", refund, &result); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{RefundTxID: result.CaptureID, Status: paypalSyncStatus(result.Status)}, nil
}

func (a *PaypalAdapter) LookupCharge(ctx context.Context, gatewayTxID string) (Event, error) {
	var result paypalCaptureResponse
	if err := a.do(ctx, http.MethodGet, "/v2/captures/"+gatewayTxID, nil, &result); err != nil {
		return Event{}, err
	}
	eventType := "charge.pending"
	switch result.Status {
	case "COMPLETED":
		eventType = "charge.succeeded"
	case "DECLINED", "FAILED":
		eventType = "charge.failed"
	}
	return Event{
		Type:        eventType,
		Gateway:     a.Name(),
		EventID:     fmt.Sprintf("lookup_%s_%s", result.CaptureID, strings.ToLower(result.Status)),
		GatewayTxID: result.CaptureID,
		Amount:      result.Amount,
		Currency:    result.Currency,
		ReceivedAt:  time.Now(),
	}, nil
}

type paypalAPIError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (a *PaypalAdapter) do(ctx context.Context, method, path string, in, out interface{}) error {
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
	httpReq.SetBasicAuth(a.cfg.ClientID, a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return NewError(ErrCodeGatewayUnavailable, a.Name(), err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(ErrCodeGatewayUnavailable, a.Name(), err.Error())
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return NewError(ErrCodeGatewayUnavailable, a.Name(), fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		var apiErr paypalAPIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil {
			return NewError(ErrCodeInvalidRequest, a.Name(), fmt.Sprintf("status %d", resp.StatusCode))
		}
		return a.normalizeError(apiErr)
	}
	return json.Unmarshal(respBody, out)
}

func (a *PaypalAdapter) normalizeError(apiErr paypalAPIError) *Error {
	switch apiErr.Name {
	case "INSUFFICIENT_FUNDS":
		return NewError(ErrCodeInsufficientFunds, a.Name(), apiErr.Message)
	case "INSTRUMENT_DECLINED", "PAYER_ACTION_REQUIRED", "PAYER_CANNOT_PAY":
		return NewError(ErrCodeCardDeclined, a.Name(), apiErr.Message)
	default:
		return NewError(ErrCodeInvalidRequest, a.Name(), apiErr.Message)
	}
}

func (a *PaypalAdapter) SignatureHeader() string { return "X-Wallet-Signature" }

// VerifyWebhookSignature checks a base64 HMAC-SHA256 of the raw body keyed
// with the shared webhook secret.
func (a *PaypalAdapter) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

type paypalWebhookPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Resource  struct {
		CaptureID string `json:"capture_id"`
		RefundID  string `json:"refund_id"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"resource"`
}

func (a *PaypalAdapter) ParseWebhook(rawBody []byte) (Event, error) {
	var payload paypalWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return Event{}, NewError(ErrCodeInvalidRequest, a.Name(), "malformed webhook payload: "+err.Error())
	}
	if payload.EventID == "" {
		return Event{}, NewError(ErrCodeInvalidRequest, a.Name(), "webhook payload missing event_id")
	}

	event := Event{
		Gateway:     a.Name(),
		EventID:     payload.EventID,
		GatewayTxID: payload.Resource.CaptureID,
		Amount:      payload.Resource.Amount,
		Currency:    payload.Resource.Currency,
		PayloadHash: hashPayload(rawBody),
		ReceivedAt:  time.Now(),
	}
	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		event.Type = "charge.succeeded"
	case "PAYMENT.CAPTURE.DENIED":
		event.Type = "charge.failed"
	case "PAYMENT.REFUND.COMPLETED":
		event.Type = "refund.succeeded"
		event.RefundTxID = payload.Resource.RefundID
	case "PAYMENT.REFUND.FAILED":
		event.Type = "refund.failed"
		event.RefundTxID = payload.Resource.RefundID
	default:
		// Authentic but irrelevant to us. Passed through under the raw type
		// for the caller to ack.
		event.Type = payload.EventType
	}
	return event, nil
}

func paypalSyncStatus(status string) SyncStatus {
	switch status {
	case "COMPLETED":
		return StatusCompleted
	case "DECLINED", "FAILED":
		return StatusFailed
	default:
		return StatusPending
	}
}
