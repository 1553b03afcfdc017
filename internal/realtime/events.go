package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType discriminates push-channel messages. The set is closed: anything
// outside it is rejected at the channel boundary instead of being trusted.
type EventType string

const (
	// Keepalive and protocol-level messages.
	EventPing      EventType = "ping"
	EventConnected EventType = "connected"

	// Domain events.
	EventLineReserved        EventType = "LINE_RESERVED"
	EventLineActivated       EventType = "LINE_ACTIVATED"
	EventLineAvailable       EventType = "LINE_AVAILABLE"
	EventLineBlocked         EventType = "LINE_BLOCKED"
	EventSimAdded            EventType = "SIM_ADDED"
	EventClientCreated       EventType = "CLIENT_CREATED"
	EventClientLineRequested EventType = "CLIENT_LINE_REQUESTED"
)

var ErrUnknownEventType = errors.New("unknown realtime event type")

var knownEventTypes = map[EventType]struct{}{
	EventPing:                {},
	EventConnected:           {},
	EventLineReserved:        {},
	EventLineActivated:       {},
	EventLineAvailable:       {},
	EventLineBlocked:         {},
	EventSimAdded:            {},
	EventClientCreated:       {},
	EventClientLineRequested: {},
}

// Event is a single push-channel message. Payload is kept raw: the durable
// state lives server-side and consumers only use the event as a staleness
// signal, so there is no reason to commit to a payload schema here.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsKeepalive reports whether the event carries no domain meaning.
func (e Event) IsKeepalive() bool {
	return e.Type == EventPing || e.Type == EventConnected
}

// DecodeEvent parses a raw push-channel frame into a typed Event.
// Malformed JSON and unknown types are both errors; the caller logs and drops
// the frame without affecting connection state.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed realtime event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("realtime event missing type discriminator")
	}
	if _, ok := knownEventTypes[ev.Type]; !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	return ev, nil
}
