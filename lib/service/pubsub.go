package service

import (
	"sync"

	"github.com/labstack/gommon/random"
	"github.com/shauritanga/rtexpress-payments/db/models"
)

// PaymentEvent is what gets fanned out after a ledger commit. Consumers
// (outbound webhook notifier, message queue publisher) never run inside the
// ledger's critical section.
type PaymentEvent struct {
	Topic   string               `json:"topic"`
	Payment models.Payment       `json:"payment"`
	Invoice models.Invoice       `json:"invoice"`
	Refund  *models.RefundRecord `json:"refund,omitempty"`
}

type Pubsub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan PaymentEvent
}

func NewPubsub() *Pubsub {
	ps := &Pubsub{}
	ps.subs = make(map[string]map[string]chan PaymentEvent)
	return ps
}

func (ps *Pubsub) Subscribe(topic string, ch chan PaymentEvent) (subId string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.subs[topic] == nil {
		ps.subs[topic] = make(map[string]chan PaymentEvent)
	}
	subId = random.String(32, random.Alphanumeric)
	ps.subs[topic][subId] = ch
	return subId
}

func (ps *Pubsub) Unsubscribe(id string, topic string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.subs[topic] == nil {
		return
	}
	if ps.subs[topic][id] == nil {
		return
	}
	close(ps.subs[topic][id])
	delete(ps.subs[topic], id)
}

func (ps *Pubsub) Publish(topic string, msg PaymentEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.subs[topic] == nil {
		return
	}

	for _, ch := range ps.subs[topic] {
		ch <- msg
	}
}
