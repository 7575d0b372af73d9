package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
)

func TestPubsubDeliversToSubscriber(t *testing.T) {
	ps := NewPubsub()
	ch := make(chan PaymentEvent, 1)
	ps.Subscribe(common.TopicPaymentCompleted, ch)

	sent := PaymentEvent{
		Topic:   common.TopicPaymentCompleted,
		Payment: models.Payment{ID: 42},
	}
	ps.Publish(common.TopicPaymentCompleted, sent)

	select {
	case got := <-ch:
		assert.Equal(t, int64(42), got.Payment.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a published event")
	}
}

func TestPubsubTopicsAreIsolated(t *testing.T) {
	ps := NewPubsub()
	ch := make(chan PaymentEvent, 1)
	ps.Subscribe(common.TopicPaymentFailed, ch)

	ps.Publish(common.TopicPaymentCompleted, PaymentEvent{Topic: common.TopicPaymentCompleted})

	select {
	case <-ch:
		t.Fatal("subscriber got an event from another topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPubsubUnsubscribeClosesChannel(t *testing.T) {
	ps := NewPubsub()
	ch := make(chan PaymentEvent, 1)
	id := ps.Subscribe(common.TopicRefundCompleted, ch)

	ps.Unsubscribe(id, common.TopicRefundCompleted)

	_, open := <-ch
	assert.False(t, open)
}
