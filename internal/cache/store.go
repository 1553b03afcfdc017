// Package cache holds the server-derived collection caches and the bridge
// that marks them stale when push-channel events arrive. Invalidation is the
// system's only consistency mechanism: it is eventual, not transactional, and
// a dashboard may serve stale counts until its next read triggers a refetch.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tag names one cached server-derived collection.
type Tag string

const (
	TagLineReservations Tag = "line_reservations"
	TagLinesToActivate  Tag = "lines_to_activate"
	TagSimStock         Tag = "sim_stock"
)

// FetchFunc loads a collection from the authoritative backend.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	value     any
	stale     bool
	fetchedAt time.Time
}

// Store is a tag-keyed collection cache with stale-while-revalidate reads:
// Invalidate only marks an entry stale, the refetch happens lazily on the
// next Get.
type Store struct {
	mu      sync.Mutex
	entries map[Tag]*entry
	logger  *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		entries: make(map[Tag]*entry),
		logger:  logger.With("component", "cache"),
	}
}

// Get returns the cached collection for tag, fetching it first when the entry
// is missing or stale. A failed fetch leaves any previous entry stale so the
// next read retries.
func (s *Store) Get(ctx context.Context, tag Tag, fetch FetchFunc) (any, error) {
	s.mu.Lock()
	if e, ok := s.entries[tag]; ok && !e.stale {
		value := e.value
		s.mu.Unlock()
		return value, nil
	}
	s.mu.Unlock()

	value, err := fetch(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "cache refetch failed", "tag", tag, "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.entries[tag] = &entry{value: value, fetchedAt: time.Now().UTC()}
	s.mu.Unlock()
	return value, nil
}

// Invalidate marks the tagged collection stale. It is idempotent and
// commutative: re-applying an invalidation, in any order relative to others,
// has the same observable effect.
func (s *Store) Invalidate(tag Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invalidationsCounter.WithLabelValues(string(tag)).Inc()
	if e, ok := s.entries[tag]; ok {
		e.stale = true
	}
	// No entry yet: nothing cached to mark, the next Get fetches anyway.
}

// IsStale reports whether a cached entry exists and is marked stale.
// Diagnostics only.
func (s *Store) IsStale(tag Tag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tag]
	return ok && e.stale
}
