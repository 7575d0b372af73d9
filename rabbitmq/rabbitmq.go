package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

const contentTypeJSON = "application/json"

// SubscribeToPaymentsFunc hands the publisher its event feeds. Separating
// the subscription from the publish loop keeps this package free of any
// dependency on how the service fans events out.
type SubscribeToPaymentsFunc = func() (completed, failed, refunded chan service.PaymentEvent, err error)

type Client interface {
	StartPublishPayments(context.Context, SubscribeToPaymentsFunc) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	conn *amqp.Connection

	// Publishers and consumers should use separate channels so flow control
	// applied to one does not stall the other.
	publishChannel *amqp.Channel

	logger *lecho.Logger

	paymentExchange string
}

type ClientOption = func(client *DefaultClient)

func WithPaymentExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.paymentExchange = exchange
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

// Dial sets up a connection to rabbitmq with a channel ready to publish.
func Dial(uri string, options ...ClientOption) (Client, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}

	publishChannel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	client := &DefaultClient{
		conn:           conn,
		publishChannel: publishChannel,

		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.DEBUG),
			lecho.WithTimestamp(),
		),

		paymentExchange: "rtexpress_payment",
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

func (client *DefaultClient) Close() error { return client.conn.Close() }

// StartPublishPayments relays payment lifecycle events onto the payment
// exchange until the context is cancelled. Routing keys follow
// "payment.completed", "payment.failed" and "refund.completed", so consumers
// can bind to "payment.#" or to a single outcome.
func (client *DefaultClient) StartPublishPayments(ctx context.Context, subscribeFunc SubscribeToPaymentsFunc) error {
	err := client.publishChannel.ExchangeDeclare(
		client.paymentExchange,
		// topic exchanges route messages to queues based on a routing key
		"topic",
		// Durable and Non-Auto-Deleted exchanges survive server restarts and
		// remain declared when there are no remaining bindings.
		true,
		false,
		// Non-Internal exchanges accept direct publishing
		false,
		// Nowait: false because we want the server to confirm the exchange
		// was created successfully
		false,
		nil,
	)
	if err != nil {
		return err
	}

	client.logger.Info("Starting rabbitmq publisher")

	completed, failed, refunded, err := subscribeFunc()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case event := <-completed:
			if err = client.publishToPaymentExchange(ctx, event); err != nil {
				captureErr(client.logger, err)
			}
		case event := <-failed:
			if err = client.publishToPaymentExchange(ctx, event); err != nil {
				captureErr(client.logger, err)
			}
		case event := <-refunded:
			if err = client.publishToPaymentExchange(ctx, event); err != nil {
				captureErr(client.logger, err)
			}
		}
	}
}

func (client *DefaultClient) publishToPaymentExchange(ctx context.Context, event service.PaymentEvent) error {
	payload := new(bytes.Buffer)
	if err := json.NewEncoder(payload).Encode(event); err != nil {
		return err
	}

	err := client.publishChannel.PublishWithContext(ctx,
		client.paymentExchange,
		event.Topic,
		false,
		false,
		amqp.Publishing{
			ContentType: contentTypeJSON,
			Body:        payload.Bytes(),
		},
	)
	if err != nil {
		captureErr(client.logger, err)
		return err
	}

	client.logger.Debugf("Published %s for payment %d to rabbitmq", event.Topic, event.Payment.ID)

	return nil
}

// SubscribePaymentEvents wires a service's pubsub into the shape the
// publisher consumes.
func SubscribePaymentEvents(svc *service.PaymentsService) SubscribeToPaymentsFunc {
	return func() (chan service.PaymentEvent, chan service.PaymentEvent, chan service.PaymentEvent, error) {
		completed := make(chan service.PaymentEvent)
		failed := make(chan service.PaymentEvent)
		refunded := make(chan service.PaymentEvent)
		svc.PaymentPubSub.Subscribe(common.TopicPaymentCompleted, completed)
		svc.PaymentPubSub.Subscribe(common.TopicPaymentFailed, failed)
		svc.PaymentPubSub.Subscribe(common.TopicRefundCompleted, refunded)
		return completed, failed, refunded, nil
	}
}

func captureErr(logger *lecho.Logger, err error) {
	logger.Error(err)
	sentry.CaptureException(err)
}
