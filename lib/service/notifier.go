package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/shauritanga/rtexpress-payments/common"
)

// StartWebhookNotifier forwards payment lifecycle events to the configured
// outbound webhook url until the context is cancelled.
func (svc *PaymentsService) StartWebhookNotifier(ctx context.Context) {
	svc.Logger.Infof("Starting webhook notifier with webhook url %s", svc.Config.WebhookUrl)
	completed := make(chan PaymentEvent)
	failed := make(chan PaymentEvent)
	refunded := make(chan PaymentEvent)
	completedId := svc.PaymentPubSub.Subscribe(common.TopicPaymentCompleted, completed)
	failedId := svc.PaymentPubSub.Subscribe(common.TopicPaymentFailed, failed)
	refundedId := svc.PaymentPubSub.Subscribe(common.TopicRefundCompleted, refunded)
	for {
		select {
		case <-ctx.Done():
			svc.PaymentPubSub.Unsubscribe(completedId, common.TopicPaymentCompleted)
			svc.PaymentPubSub.Unsubscribe(failedId, common.TopicPaymentFailed)
			svc.PaymentPubSub.Unsubscribe(refundedId, common.TopicRefundCompleted)
			return
		case event := <-completed:
			svc.postToWebhook(event)
		case event := <-failed:
			svc.postToWebhook(event)
		case event := <-refunded:
			svc.postToWebhook(event)
		}
	}
}

func (svc *PaymentsService) postToWebhook(event PaymentEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		svc.Logger.Error(err)
		return
	}

	post := func() error {
		resp, err := http.Post(svc.Config.WebhookUrl, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				svc.Logger.Error(readErr)
			}
			return fmt.Errorf("webhook status code was %d, body: %s", resp.StatusCode, msg)
		}
		return nil
	}
	err = backoff.Retry(post, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(svc.Config.MaxWebhookRetryCount)))
	if err != nil {
		svc.Logger.Errorf("Failed to deliver webhook for %s: %v", event.Topic, err)
	}
}
