package gateway

import (
	"context"
	"errors"
	"time"
)

// SyncStatus is the immediate outcome of a Charge or Refund call. Gateways
// that settle asynchronously return StatusPending and report the final
// outcome through their webhook.
type SyncStatus string

const (
	StatusPending   SyncStatus = "pending"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
)

type ChargeRequest struct {
	InvoiceID        int64
	PaymentRef       string
	CustomerRef      string
	Amount           int64
	Currency         string
	Description      string
	IdempotencyToken string
	PhoneNumber      string
}

type ChargeResult struct {
	GatewayTxID string
	Status      SyncStatus
}

type RefundResult struct {
	RefundTxID string
	Status     SyncStatus
}

// Event is the normalized form of a gateway webhook callback. Adapters
// translate their wire formats into this shape and nothing gateway-specific
// crosses past it.
type Event struct {
	Type          string
	Gateway       string
	EventID       string
	GatewayTxID   string
	RefundTxID    string
	Amount        int64
	Currency      string
	FailureReason string
	PayloadHash   string
	ReceivedAt    time.Time
}

// Adapter is implemented once per external payment gateway.
type Adapter interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, gatewayTxID string, amount int64, idempotencyToken string) (RefundResult, error)
	// LookupCharge queries the gateway for the current state of a charge and
	// returns it as a normalized event, for reconciling payments whose
	// webhook never arrived.
	LookupCharge(ctx context.Context, gatewayTxID string) (Event, error)
	VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool
	// SignatureHeader returns the name of the HTTP header carrying the
	// webhook signature for this gateway.
	SignatureHeader() string
	ParseWebhook(rawBody []byte) (Event, error)
}

type ErrorCode string

const (
	ErrCodeInsufficientFunds  ErrorCode = "insufficient_funds"
	ErrCodeCardDeclined       ErrorCode = "card_declined"
	ErrCodeGatewayUnavailable ErrorCode = "gateway_unavailable"
	ErrCodeInvalidRequest     ErrorCode = "invalid_request"
)

// Error is the uniform failure taxonomy returned by all adapters. Ledger and
// reconciler code branch on Code, never on gateway-specific responses.
type Error struct {
	Code    ErrorCode
	Gateway string
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + " (" + e.Gateway + "): " + e.Message
}

// Retryable reports whether the failure is transient. Only transient
// failures may be retried automatically.
func (e *Error) Retryable() bool {
	return e.Code == ErrCodeGatewayUnavailable
}

func NewError(code ErrorCode, gatewayName, message string) *Error {
	return &Error{Code: code, Gateway: gatewayName, Message: message}
}

// AsError unwraps err into a gateway Error if it is one.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	ge, ok := AsError(err)
	return ok && ge.Retryable()
}

// DeclineMessage maps a normalized failure code to the small fixed set of
// human-readable reasons surfaced to callers.
func DeclineMessage(code ErrorCode) string {
	switch code {
	case ErrCodeInsufficientFunds:
		return "The payment method has insufficient funds"
	case ErrCodeCardDeclined:
		return "The payment was declined by the provider"
	case ErrCodeGatewayUnavailable:
		return "The payment provider is temporarily unavailable. Please try again"
	default:
		return "The payment request was rejected"
	}
}
