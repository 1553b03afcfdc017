package app

import (
	"context"
	"log/slog"

	"github.com/movitel/lineops/internal/eventbus"
	"github.com/movitel/lineops/internal/journal/domain"
	"github.com/movitel/lineops/internal/realtime"
)

// Recorder journals every accepted push-channel event. Bus handlers must stay
// cheap, so the handler only enqueues; a single worker goroutine drains the
// queue into the repository. A full queue drops the record rather than block
// inbound push processing.
type Recorder struct {
	repo   domain.EventRepository
	bus    *eventbus.Bus
	logger *slog.Logger
	queue  chan *domain.EventRecord
	subs   []eventbus.Subscription
}

func NewRecorder(repo domain.EventRepository, bus *eventbus.Bus, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		bus:    bus,
		logger: logger.With("component", "journal"),
		queue:  make(chan *domain.EventRecord, 256),
	}
}

var journaledEvents = []realtime.EventType{
	realtime.EventLineReserved,
	realtime.EventLineActivated,
	realtime.EventLineAvailable,
	realtime.EventLineBlocked,
	realtime.EventSimAdded,
	realtime.EventClientCreated,
	realtime.EventClientLineRequested,
}

// Start subscribes to the bus and runs the writer until ctx is cancelled.
// Blocking; designed to be run in a goroutine (errgroup).
func (r *Recorder) Start(ctx context.Context) error {
	for _, evType := range journaledEvents {
		evType := evType
		sub := r.bus.On(string(evType), func(payload any) {
			ev, ok := payload.(realtime.Event)
			if !ok {
				return
			}
			record := domain.NewEventRecord(string(ev.Type), ev.Payload)
			select {
			case r.queue <- record:
			default:
				r.logger.Warn("journal queue full, dropping event record", "event_type", ev.Type)
			}
		})
		r.subs = append(r.subs, sub)
	}
	defer func() {
		for _, sub := range r.subs {
			r.bus.Off(sub)
		}
		r.subs = nil
	}()

	r.logger.InfoContext(ctx, "event journal started")
	for {
		select {
		case record := <-r.queue:
			if err := r.repo.Create(ctx, record); err != nil {
				r.logger.ErrorContext(ctx, "failed to journal event", "error", err, "event_type", record.EventType)
			}
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "event journal stopped")
			return nil
		}
	}
}
