package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeConfig carries the credentials and endpoint for the card-processor
// gateway. Values are passed through from the service configuration.
type StripeConfig struct {
	BaseURL        string
	SecretKey      string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// StripeAdapter implements Adapter for a Stripe-style card processor.
// Charges settle synchronously; webhooks confirm asynchronous outcomes
// (disputed or delayed captures) and refunds.
type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	return &StripeAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (a *StripeAdapter) Name() string { return "stripe" }

type stripeCharge struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	FailureCode string `json:"failure_code"`
	FailureMsg  string `json:"failure_message"`
}

type stripeError struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code"`
	} `json:"error"`
}

func (a *StripeAdapter) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("description", req.Description)
	form.Set("metadata[payment_ref]", req.PaymentRef)
	form.Set("metadata[invoice_id]", strconv.FormatInt(req.InvoiceID, 10))
	if req.CustomerRef != "" {
		form.Set("customer", req.CustomerRef)
	}

	var charge stripeCharge
	err := a.do(ctx, http.MethodPost, "/v1/charges", form, req.IdempotencyToken, &charge)
	if err != nil {
		return ChargeResult{}, err
	}
	return ChargeResult{GatewayTxID: charge.ID, Status: stripeSyncStatus(charge.Status)}, nil
}

func (a *StripeAdapter) Refund(ctx context.Context, gatewayTxID string, amount int64, idempotencyToken string) (RefundResult, error) {
	form := url.Values{}
	form.Set("charge", gatewayTxID)
	form.Set("amount", strconv.FormatInt(amount, 10))

	var refund stripeCharge
	err := a.do(ctx, http.MethodPost, "/v1/refunds", form, idempotencyToken, &refund)
	if err != nil {
		return RefundResult{}, err
	}
	return RefundResult{RefundTxID: refund.ID, Status: stripeSyncStatus(refund.Status)}, nil
}

func (a *StripeAdapter) LookupCharge(ctx context.Context, gatewayTxID string) (Event, error) {
	var charge stripeCharge
	err := a.do(ctx, http.MethodGet, "/v1/charges/"+gatewayTxID, nil, "", &charge)
	if err != nil {
		return Event{}, err
	}
	eventType := "charge.pending"
	switch charge.Status {
	case "succeeded":
		eventType = "charge.succeeded"
	case "failed":
		eventType = "charge.failed"
	}
	return Event{
		Type:        eventType,
		Gateway:     a.Name(),
		EventID:     fmt.Sprintf("lookup_%s_%s", charge.ID, charge.Status),
		GatewayTxID: charge.ID,
		Amount:      charge.Amount,
		Currency:    strings.ToUpper(charge.Currency),
		ReceivedAt:  time.Now(),
	}, nil
}

func (a *StripeAdapter) do(ctx context.Context, method, path string, form url.Values, idempotencyToken string, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return NewError(ErrCodeInvalidRequest, a.Name(), err.Error())
	}
	httpReq.SetBasicAuth(a.cfg.SecretKey, "")
	if form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyToken != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyToken)
	}

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
		var apiErr stripeError
		if err := json.Unmarshal(respBody, &apiErr); err != nil {
			return NewError(ErrCodeInvalidRequest, a.Name(), fmt.Sprintf("status %d", resp.StatusCode))
		}
		return a.normalizeError(apiErr)
	}
	return json.Unmarshal(respBody, out)
}

func (a *StripeAdapter) normalizeError(apiErr stripeError) *Error {
	code := apiErr.Error.Code
	if apiErr.Error.DeclineCode != "" {
		code = apiErr.Error.DeclineCode
	}
	switch code {
	case "insufficient_funds":
		return NewError(ErrCodeInsufficientFunds, a.Name(), apiErr.Error.Message)
	case "card_declined", "expired_card", "incorrect_cvc", "do_not_honor", "generic_decline":
		return NewError(ErrCodeCardDeclined, a.Name(), apiErr.Error.Message)
	case "rate_limit":
		return NewError(ErrCodeGatewayUnavailable, a.Name(), apiErr.Error.Message)
	default:
		return NewError(ErrCodeInvalidRequest, a.Name(), apiErr.Error.Message)
	}
}

func (a *StripeAdapter) SignatureHeader() string { return "Stripe-Signature" }

// signatureTolerance bounds how old a signed webhook timestamp may be,
// limiting replay of captured payloads.
const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the `t=<ts>,v1=<hmac>` scheme: the signed
// payload is "<ts>.<body>" and the MAC is HMAC-SHA256 with the endpoint
// secret.
func (a *StripeAdapter) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	var ts string
	var sigs []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}
	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(tsInt, 0)); d > signatureTolerance || d < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

type stripeWebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID          string `json:"id"`
			Charge      string `json:"charge"`
			Amount      int64  `json:"amount"`
			Currency    string `json:"currency"`
			FailureCode string `json:"failure_code"`
			FailureMsg  string `json:"failure_message"`
		} `json:"object"`
	} `json:"data"`
}

func (a *StripeAdapter) ParseWebhook(rawBody []byte) (Event, error) {
	var payload stripeWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return Event{}, NewError(ErrCodeInvalidRequest, a.Name(), "malformed webhook payload: "+err.Error())
	}
	if payload.ID == "" || payload.Type == "" {
		return Event{}, NewError(ErrCodeInvalidRequest, a.Name(), "webhook payload missing id or type")
	}

	event := Event{
		Gateway:     a.Name(),
		EventID:     payload.ID,
		Amount:      payload.Data.Object.Amount,
		Currency:    strings.ToUpper(payload.Data.Object.Currency),
		PayloadHash: hashPayload(rawBody),
		ReceivedAt:  time.Now(),
	}
	switch payload.Type {
	case "charge.succeeded":
		event.Type = "charge.succeeded"
		event.GatewayTxID = payload.Data.Object.ID
	case "charge.failed":
		event.Type = "charge.failed"
		event.GatewayTxID = payload.Data.Object.ID
		event.FailureReason = payload.Data.Object.FailureMsg
		if event.FailureReason == "" {
			event.FailureReason = payload.Data.Object.FailureCode
		}
	case "refund.succeeded", "charge.refunded":
		event.Type = "refund.succeeded"
		event.RefundTxID = payload.Data.Object.ID
		event.GatewayTxID = payload.Data.Object.Charge
	case "refund.failed":
		event.Type = "refund.failed"
		event.RefundTxID = payload.Data.Object.ID
		event.GatewayTxID = payload.Data.Object.Charge
	default:
		// Authentic but irrelevant to us (disputes, payouts, account
		// updates). Passed through under the raw type for the caller to ack.
		event.Type = payload.Type
		event.GatewayTxID = payload.Data.Object.ID
	}
	return event, nil
}

func stripeSyncStatus(status string) SyncStatus {
	switch status {
	case "succeeded":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func hashPayload(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:])
}
