package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel payment events are relayed on.
const DefaultChannel = "settle:payments:completed"

// envelope tags relayed events with their origin to avoid self-delivery.
type envelope struct {
	Event      Event  `json:"event"`
	InstanceID string `json:"instance_id"`
	Timestamp  int64  `json:"timestamp"`
}

// RedisRelay publishes events to the local bus and to Redis, and feeds events
// published by other instances into the local bus.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	local      *Bus
	instanceID string
}

// NewRedisRelay creates a relay between local and the given Redis channel.
func NewRedisRelay(client *redis.Client, channel string, local *Bus) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		local:      local,
		instanceID: uuid.NewString(),
	}
}

// Publish delivers locally, then relays to other instances. Relay failures
// are logged; notification is best effort.
func (r *RedisRelay) Publish(ctx context.Context, event Event) {
	r.local.Publish(ctx, event)

	data, err := json.Marshal(envelope{
		Event:      event,
		InstanceID: r.instanceID,
		Timestamp:  time.Now().Unix(),
	})
	if err != nil {
		slog.Error("Failed to marshal payment event", "payment_id", event.PaymentID, "error", err)
		return
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		slog.Warn("Failed to relay payment event",
			"payment_id", event.PaymentID,
			"channel", r.channel,
			"error", err,
		)
		return
	}

	slog.Debug("Payment event relayed to Redis", "payment_id", event.PaymentID, "channel", r.channel)
}

// Run subscribes to the relay channel until ctx is done, reconnecting with
// backoff when the subscription drops.
func (r *RedisRelay) Run(ctx context.Context) error {
	b := newBackoff(time.Second, 30*time.Second)

	for {
		subscribed, err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			b.reset()
		}
		wait := b.next()

		slog.Warn("Payment event subscription disconnected, reconnecting",
			"channel", r.channel,
			"error", err,
			"backoff", wait,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// subscribe reports whether the subscription was confirmed before it ended.
func (r *RedisRelay) subscribe(ctx context.Context) (bool, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to channel %s: %w", r.channel, err)
	}

	slog.Info("Subscribed to payment events", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return true, nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

// backoff doubles from min up to max.
type backoff struct {
	min, max, cur time.Duration
}

func newBackoff(minWait, maxWait time.Duration) *backoff {
	return &backoff{min: minWait, max: maxWait, cur: minWait}
}

func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	return d
}

func (b *backoff) reset() {
	b.cur = b.min
}

func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("Failed to unmarshal payment event", "payload", payload, "error", err)
		return
	}
	if env.InstanceID == r.instanceID {
		return
	}
	r.local.Publish(ctx, env.Event)
}
