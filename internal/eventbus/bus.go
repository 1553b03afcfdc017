// Package eventbus provides an in-process publish/subscribe bus that decouples
// the push-channel connection manager from feature-level consumers such as the
// cache invalidation bridge and the NATS relay.
package eventbus

import (
	"log/slog"
	"sync"
)

// Handler is invoked synchronously for every emitted event of a subscribed name.
type Handler func(payload any)

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	event string
	id    uint64
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus dispatches named events to handlers in registration order. Dispatch is
// synchronous: Emit does not return until every handler has run. A panicking
// handler is recovered and logged so it cannot break delivery to the rest.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]registration
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]registration),
		logger:   logger.With("component", "eventbus"),
	}
}

// On registers a handler for the named event and returns its subscription.
func (b *Bus) On(event string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[event] = append(b.handlers[event], registration{id: b.nextID, handler: handler})
	return Subscription{event: event, id: b.nextID}
}

// Off removes a previously registered handler. Removing an unknown
// subscription is a no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[sub.event]
	for i, reg := range regs {
		if reg.id == sub.id {
			b.handlers[sub.event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Emit invokes all handlers registered for the event, in registration order.
// Handlers run inline on the caller's goroutine; there is no queueing or
// back-pressure, so a slow handler blocks inbound push processing until it
// returns. All registered work is lightweight cache-marking, which keeps this
// acceptable.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	regs := make([]registration, len(b.handlers[event]))
	copy(regs, b.handlers[event])
	b.mu.Unlock()

	for _, reg := range regs {
		b.invoke(event, reg, payload)
	}
}

func (b *Bus) invoke(event string, reg registration, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	reg.handler(payload)
}
