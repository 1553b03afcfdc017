package app

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movitel/lineops/internal/eventbus"
	"github.com/movitel/lineops/internal/journal/domain"
	"github.com/movitel/lineops/internal/realtime"
)

type memoryEventRepository struct {
	mu      sync.Mutex
	records []domain.EventRecord
}

func (m *memoryEventRepository) Create(ctx context.Context, record *domain.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryEventRepository) Recent(ctx context.Context, limit int) ([]domain.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]domain.EventRecord, limit)
	copy(out, m.records[len(m.records)-limit:])
	return out, nil
}

func (m *memoryEventRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestRecorderJournalsDomainEvents(t *testing.T) {
	repo := &memoryEventRepository{}
	bus := eventbus.New(slog.Default())
	recorder := NewRecorder(repo, bus, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	// Give the subscriber a moment to register.
	require.Eventually(t, func() bool {
		bus.Emit(string(realtime.EventSimAdded), realtime.Event{Type: realtime.EventSimAdded, Payload: []byte(`{"iccid":"89330"}`)})
		return repo.count() > 0
	}, time.Second, 10*time.Millisecond)

	records, err := repo.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(realtime.EventSimAdded), records[0].EventType)
}

func TestRecorderIgnoresForeignPayloads(t *testing.T) {
	repo := &memoryEventRepository{}
	bus := eventbus.New(slog.Default())
	recorder := NewRecorder(repo, bus, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	bus.Emit(string(realtime.EventLineReserved), "not an event struct")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, repo.count())
}
