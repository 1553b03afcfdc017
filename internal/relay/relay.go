// Package relay republishes normalized realtime events to NATS so sibling
// back-office services can follow line/SIM/client changes without holding
// their own push-channel subscription.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/movitel/lineops/internal/cache"
	"github.com/movitel/lineops/internal/eventbus"
	"github.com/movitel/lineops/internal/realtime"
)

// Publisher is the broker surface the relay needs; satisfied by
// messagebroker.NatsClient.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

const subjectPrefix = "lineops.events."

// Relay forwards normalized bus events to the message broker.
type Relay struct {
	publisher Publisher
	bus       *eventbus.Bus
	logger    *slog.Logger
	subs      []eventbus.Subscription
}

func New(publisher Publisher, bus *eventbus.Bus, logger *slog.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		bus:       bus,
		logger:    logger.With("component", "relay"),
	}
}

type relayedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Register wires the relay onto the bus. Call once at session start.
func (r *Relay) Register(ctx context.Context) {
	for _, normalized := range []string{
		cache.NormalizedLineUpdate,
		cache.NormalizedSimUpdate,
		cache.NormalizedClientUpdate,
	} {
		normalized := normalized
		sub := r.bus.On(normalized, func(payload any) {
			r.forward(ctx, normalized, payload)
		})
		r.subs = append(r.subs, sub)
	}
}

// Unregister detaches the relay from the bus.
func (r *Relay) Unregister() {
	for _, sub := range r.subs {
		r.bus.Off(sub)
	}
	r.subs = nil
}

func (r *Relay) forward(ctx context.Context, normalized string, payload any) {
	ev, ok := payload.(realtime.Event)
	if !ok {
		return
	}

	data, err := json.Marshal(relayedEvent{Type: string(ev.Type), Payload: ev.Payload})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to marshal relayed event", "error", err, "normalized", normalized)
		return
	}

	subject := subjectPrefix + normalized
	if err := r.publisher.Publish(ctx, subject, data); err != nil {
		// Relay is best-effort: a broker outage must not affect push handling.
		r.logger.WarnContext(ctx, "failed to relay event to broker", "error", err, "subject", subject)
	}
}
