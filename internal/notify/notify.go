// Package notify broadcasts "payment completed" events to observers.
//
// Delivery is at least once. Publish hands every event to subscribers twice,
// immediately and again after a short delay, so a subscriber that registers
// just after a payment still hears about it. Subscribers must tolerate
// duplicates.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/settle/internal/goroutine"
)

// DefaultRedeliveryDelay is the delay before the second delivery.
const DefaultRedeliveryDelay = time.Second

// Event announces a confirmed payment.
type Event struct {
	PaymentID string `json:"paymentId"`
	GroupID   string `json:"groupId"`
	Amount    string `json:"amount"`
}

// Publisher is implemented by anything that can broadcast an Event.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Handler receives events.
type Handler func(Event)

// Bus is an in-process Publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	timers   map[*time.Timer]struct{}
	closed   bool
	delay    time.Duration
}

// NewBus creates a bus that redelivers each event after delay. A zero delay
// disables redelivery.
func NewBus(delay time.Duration) *Bus {
	return &Bus{
		handlers: make(map[int]Handler),
		timers:   make(map[*time.Timer]struct{}),
		delay:    delay,
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers event to all subscribers now and schedules the second
// delivery. It never blocks on the redelivery.
func (b *Bus) Publish(_ context.Context, event Event) {
	b.deliver(event)

	if b.delay <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(b.delay, func() {
		b.mu.Lock()
		delete(b.timers, t)
		b.mu.Unlock()
		b.deliver(event)
	})
	b.timers[t] = struct{}{}
}

// Close cancels pending redeliveries. Later publishes deliver once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for t := range b.timers {
		t.Stop()
	}
	clear(b.timers)
}

func (b *Bus) deliver(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	slog.Debug("Delivering payment event",
		"payment_id", event.PaymentID,
		"group_id", event.GroupID,
		"subscribers", len(handlers),
	)
	for _, h := range handlers {
		goroutine.Run("notify-handler", func() { h(event) })
	}
}
