package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventRecord is one accepted push-channel event persisted for audit and
// diagnostics. The record is a log entry, not state: the authoritative domain
// state stays upstream.
type EventRecord struct {
	ID         uuid.UUID
	EventType  string
	Payload    []byte
	ReceivedAt time.Time
}

func NewEventRecord(eventType string, payload []byte) *EventRecord {
	return &EventRecord{
		ID:         uuid.New(),
		EventType:  eventType,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}

// EventRepository persists event records. Duplicate deliveries are expected
// over reconnects; the journal keeps them all.
type EventRepository interface {
	Create(ctx context.Context, record *EventRecord) error
	Recent(ctx context.Context, limit int) ([]EventRecord, error)
}
