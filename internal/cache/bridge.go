package cache

import (
	"log/slog"

	"github.com/movitel/lineops/internal/eventbus"
	"github.com/movitel/lineops/internal/realtime"
)

// Normalized event names re-emitted on the bus after invalidation, for
// consumers that care about the category rather than the raw upstream type.
const (
	NormalizedLineUpdate   = "line_update"
	NormalizedSimUpdate    = "sim_update"
	NormalizedClientUpdate = "client_update"
)

type mapping struct {
	normalized string
	tags       []Tag
}

// eventMappings translates raw push-channel event types into the collections
// they make stale.
var eventMappings = map[realtime.EventType]mapping{
	realtime.EventLineReserved:        {NormalizedLineUpdate, []Tag{TagLineReservations, TagLinesToActivate}},
	realtime.EventLineActivated:       {NormalizedLineUpdate, []Tag{TagLineReservations, TagLinesToActivate}},
	realtime.EventLineAvailable:       {NormalizedLineUpdate, []Tag{TagLineReservations, TagLinesToActivate}},
	realtime.EventLineBlocked:         {NormalizedLineUpdate, []Tag{TagLineReservations, TagLinesToActivate}},
	realtime.EventSimAdded:            {NormalizedSimUpdate, []Tag{TagSimStock}},
	realtime.EventClientCreated:       {NormalizedClientUpdate, []Tag{TagLineReservations}},
	realtime.EventClientLineRequested: {NormalizedClientUpdate, []Tag{TagLineReservations}},
}

// Bridge subscribes to raw push-channel events on the bus, marks the mapped
// collections stale and re-emits the normalized event.
type Bridge struct {
	store  *Store
	bus    *eventbus.Bus
	logger *slog.Logger
	subs   []eventbus.Subscription
}

func NewBridge(store *Store, bus *eventbus.Bus, logger *slog.Logger) *Bridge {
	return &Bridge{
		store:  store,
		bus:    bus,
		logger: logger.With("component", "cache_bridge"),
	}
}

// Register wires the bridge onto the bus. Call once at session start.
func (b *Bridge) Register() {
	for evType, m := range eventMappings {
		evType, m := evType, m
		sub := b.bus.On(string(evType), func(payload any) {
			b.handle(evType, m, payload)
		})
		b.subs = append(b.subs, sub)
	}
}

// Unregister detaches the bridge from the bus.
func (b *Bridge) Unregister() {
	for _, sub := range b.subs {
		b.bus.Off(sub)
	}
	b.subs = nil
}

func (b *Bridge) handle(evType realtime.EventType, m mapping, payload any) {
	for _, tag := range m.tags {
		b.store.Invalidate(tag)
	}
	b.logger.Debug("collections invalidated", "event", evType, "normalized", m.normalized)
	b.bus.Emit(m.normalized, payload)
}
