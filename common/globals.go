package common

const (
	PaymentStatusPending           = "pending"
	PaymentStatusProcessing        = "processing"
	PaymentStatusCompleted         = "completed"
	PaymentStatusFailed            = "failed"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"

	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusViewed    = "viewed"
	InvoiceStatusPartial   = "partial"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"

	RefundStatusRequested = "requested"
	RefundStatusCompleted = "completed"
	RefundStatusFailed    = "failed"

	EventTypeChargeSucceeded = "charge.succeeded"
	EventTypeChargeFailed    = "charge.failed"
	EventTypeChargePending   = "charge.pending"
	EventTypeRefundSucceeded = "refund.succeeded"
	EventTypeRefundFailed    = "refund.failed"

	GatewayStripe = "stripe"
	GatewayPaypal = "paypal"
	GatewayMpesa  = "mpesa"

	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
	TopicRefundCompleted  = "refund.completed"
)
