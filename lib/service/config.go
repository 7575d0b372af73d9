package service

import (
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseUri             string  `envconfig:"DATABASE_URI" required:"true"`
	DatabaseMaxConns        int     `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMaxIdleConns    int     `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime int     `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"1800"` // 30 minutes
	DatabaseTimeout         int     `envconfig:"DATABASE_TIMEOUT" default:"60"`             // 60 seconds
	SentryDSN               string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	DatadogAgentUrl         string  `envconfig:"DATADOG_AGENT_URL"`
	LogFilePath             string  `envconfig:"LOG_FILE_PATH"`
	Host                    string  `envconfig:"HOST" default:"localhost:3000"`
	Port                    int     `envconfig:"PORT" default:"3000"`
	DefaultRateLimit        int     `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	StrictRateLimit         int     `envconfig:"STRICT_RATE_LIMIT" default:"10"`
	BurstRateLimit          int     `envconfig:"BURST_RATE_LIMIT" default:"1"`
	EnablePrometheus        bool    `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort          int     `envconfig:"PROMETHEUS_PORT" default:"9092"`

	// Gateway selection and credentials. A gateway with no BaseURL is
	// treated as disabled.
	DefaultGateway      string `envconfig:"DEFAULT_GATEWAY" default:"stripe"`
	StripeEnabled       bool   `envconfig:"STRIPE_ENABLED" default:"true"`
	StripeBaseUrl       string `envconfig:"STRIPE_BASE_URL" default:"https://api.stripe.com"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PaypalEnabled       bool   `envconfig:"PAYPAL_ENABLED" default:"true"`
	PaypalBaseUrl       string `envconfig:"PAYPAL_BASE_URL" default:"https://api.paypal.com"`
	PaypalClientId      string `envconfig:"PAYPAL_CLIENT_ID"`
	PaypalApiKey        string `envconfig:"PAYPAL_API_KEY"`
	PaypalWebhookSecret string `envconfig:"PAYPAL_WEBHOOK_SECRET"`
	MpesaEnabled        bool   `envconfig:"MPESA_ENABLED" default:"true"`
	MpesaBaseUrl        string `envconfig:"MPESA_BASE_URL"`
	MpesaShortCode      string `envconfig:"MPESA_SHORT_CODE"`
	MpesaApiKey         string `envconfig:"MPESA_API_KEY"`
	MpesaCallbackSecret string `envconfig:"MPESA_CALLBACK_SECRET"`

	// Published fee formulas, e.g. "stripe=290:30;paypal=349:49;mpesa=150:0"
	// (basis points : fixed minor units). The fee is provisional; it never
	// changes the amount credited to the invoice.
	FeeSchedule          FeeScheduleMap `envconfig:"FEE_SCHEDULE" default:"stripe=290:30;paypal=349:49;mpesa=150:0"`
	FeeChargedToCustomer bool           `envconfig:"FEE_CHARGED_TO_CUSTOMER" default:"false"`

	// Pass-through per-currency decimal precision for display layers,
	// e.g. "TZS=0;KES=0;USD=2".
	CurrencyPrecision PrecisionMap `envconfig:"CURRENCY_PRECISION" default:"TZS=0;KES=0;USD=2;EUR=2"`

	VerifyWebhookSignatures bool `envconfig:"VERIFY_WEBHOOK_SIGNATURES" default:"true"`
	// retries per event when posting to the outbound WEBHOOK_URL
	MaxWebhookRetryCount int `envconfig:"MAX_WEBHOOK_RETRY_COUNT" default:"3"`

	GatewayTimeout           int `envconfig:"GATEWAY_TIMEOUT" default:"10"`             // seconds
	GatewayMaxRetries        int `envconfig:"GATEWAY_MAX_RETRIES" default:"2"`          // transient failures only
	PendingSweepInterval     int `envconfig:"PENDING_SWEEP_INTERVAL" default:"300"`     // seconds
	PendingPaymentMaxAge     int `envconfig:"PENDING_PAYMENT_MAX_AGE" default:"900"`    // seconds before a processing payment is swept
	IdempotencyRetentionDays int `envconfig:"IDEMPOTENCY_RETENTION_DAYS" default:"90"`

	WebhookUrl string `envconfig:"WEBHOOK_URL"`

	RabbitMQUri             string `envconfig:"RABBITMQ_URI"`
	RabbitMQPaymentExchange string `envconfig:"RABBITMQ_PAYMENT_EXCHANGE" default:"rtexpress_payment"`
}

// FeeSchedule is a gateway's published fee formula: a percentage in basis
// points plus a fixed amount in minor units.
type FeeSchedule struct {
	Bps   int64
	Fixed int64
}

// envconfig map decoders use colon (:) as the default separator; both maps
// below need colon inside values, so they decode "k=v;k=v" themselves.

type FeeScheduleMap map[string]FeeSchedule

func (fsm *FeeScheduleMap) Decode(value string) error {
	m := map[string]FeeSchedule{}
	for _, pair := range strings.Split(value, ";") {
		kvpair := strings.Split(pair, "=")
		if len(kvpair) != 2 {
			return fmt.Errorf("invalid map item: %q", pair)
		}
		parts := strings.Split(kvpair[1], ":")
		if len(parts) != 2 {
			return fmt.Errorf("invalid fee formula: %q", kvpair[1])
		}
		bps, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid fee bps: %q", parts[0])
		}
		fixed, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid fee fixed amount: %q", parts[1])
		}
		m[kvpair[0]] = FeeSchedule{Bps: bps, Fixed: fixed}
	}
	*fsm = m
	return nil
}

// PrecisionFor returns the decimal precision for a currency code. Unlisted
// currencies fall back to 2, the common minor-unit exponent.
func (c *Config) PrecisionFor(currency string) int {
	if precision, ok := c.CurrencyPrecision[strings.ToUpper(currency)]; ok {
		return precision
	}
	return 2
}

type PrecisionMap map[string]int

func (pm *PrecisionMap) Decode(value string) error {
	m := map[string]int{}
	for _, pair := range strings.Split(value, ";") {
		kvpair := strings.Split(pair, "=")
		if len(kvpair) != 2 {
			return fmt.Errorf("invalid map item: %q", pair)
		}
		precision, err := strconv.Atoi(kvpair[1])
		if err != nil {
			return fmt.Errorf("invalid precision: %q", kvpair[1])
		}
		m[strings.ToUpper(kvpair[0])] = precision
	}
	*pm = m
	return nil
}
