package cache

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movitel/lineops/internal/eventbus"
	"github.com/movitel/lineops/internal/realtime"
)

func newBridgeFixture() (*Store, *eventbus.Bus, *Bridge) {
	logger := slog.Default()
	store := NewStore(logger)
	bus := eventbus.New(logger)
	bridge := NewBridge(store, bus, logger)
	bridge.Register()
	return store, bus, bridge
}

func prime(t *testing.T, store *Store, tags ...Tag) {
	t.Helper()
	for _, tag := range tags {
		_, err := store.Get(context.Background(), tag, func(context.Context) (any, error) { return "cached", nil })
		require.NoError(t, err)
	}
}

func TestLineEventsInvalidateLineCollections(t *testing.T) {
	for _, evType := range []realtime.EventType{
		realtime.EventLineReserved,
		realtime.EventLineActivated,
		realtime.EventLineAvailable,
		realtime.EventLineBlocked,
	} {
		t.Run(string(evType), func(t *testing.T) {
			store, bus, _ := newBridgeFixture()
			prime(t, store, TagLineReservations, TagLinesToActivate, TagSimStock)

			bus.Emit(string(evType), realtime.Event{Type: evType})

			assert.True(t, store.IsStale(TagLineReservations))
			assert.True(t, store.IsStale(TagLinesToActivate))
			assert.False(t, store.IsStale(TagSimStock))
		})
	}
}

func TestSimAddedInvalidatesSimStockOnly(t *testing.T) {
	store, bus, _ := newBridgeFixture()
	prime(t, store, TagLineReservations, TagLinesToActivate, TagSimStock)

	bus.Emit(string(realtime.EventSimAdded), realtime.Event{Type: realtime.EventSimAdded})

	assert.True(t, store.IsStale(TagSimStock))
	assert.False(t, store.IsStale(TagLineReservations))
	assert.False(t, store.IsStale(TagLinesToActivate))
}

func TestClientEventsInvalidateLineReservations(t *testing.T) {
	for _, evType := range []realtime.EventType{
		realtime.EventClientCreated,
		realtime.EventClientLineRequested,
	} {
		t.Run(string(evType), func(t *testing.T) {
			store, bus, _ := newBridgeFixture()
			prime(t, store, TagLineReservations, TagLinesToActivate)

			bus.Emit(string(evType), realtime.Event{Type: evType})

			assert.True(t, store.IsStale(TagLineReservations))
			assert.False(t, store.IsStale(TagLinesToActivate))
		})
	}
}

func TestBridgeReEmitsNormalizedEvent(t *testing.T) {
	_, bus, _ := newBridgeFixture()

	var normalized []string
	bus.On(NormalizedLineUpdate, func(any) { normalized = append(normalized, NormalizedLineUpdate) })
	bus.On(NormalizedSimUpdate, func(any) { normalized = append(normalized, NormalizedSimUpdate) })

	bus.Emit(string(realtime.EventLineBlocked), realtime.Event{Type: realtime.EventLineBlocked})
	bus.Emit(string(realtime.EventSimAdded), realtime.Event{Type: realtime.EventSimAdded})

	assert.Equal(t, []string{NormalizedLineUpdate, NormalizedSimUpdate}, normalized)
}

func TestUnregisterStopsInvalidation(t *testing.T) {
	store, bus, bridge := newBridgeFixture()
	prime(t, store, TagSimStock)

	bridge.Unregister()
	bus.Emit(string(realtime.EventSimAdded), realtime.Event{Type: realtime.EventSimAdded})

	assert.False(t, store.IsStale(TagSimStock))
}
