// Package realtime owns the session's push-channel subscription to the
// upstream carrier API. It keeps exactly one logical stream open per session,
// reconnects with bounded linear backoff, and demultiplexes inbound frames
// into typed events on the in-process bus.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/movitel/lineops/internal/eventbus"
)

// Role values carried by upstream-issued tokens.
const (
	RoleSupervisor = "supervisor"
	RoleAgency     = "agency"
)

// BusEventConnected is emitted on the event bus each time the push channel
// (re)establishes its subscription.
const BusEventConnected = "realtime.connected"

// ErrNoCredentials is returned by Connect when no bearer token is available.
var ErrNoCredentials = errors.New("push channel requires credentials")

// State is the reconnect loop's explicit state machine:
// idle -> connecting -> connected -> backoff(n) -> connecting | failed.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateBackoff    State = "backoff"
	StateFailed     State = "failed"
)

// ConnectionStatus is the diagnostics snapshot served by GET /status.
type ConnectionStatus struct {
	IsConnected       bool  `json:"isConnected"`
	ReconnectAttempts int   `json:"reconnectAttempts"`
	State             State `json:"state"`
}

type connectParams struct {
	token    string
	role     string
	agencyID string
}

// Topics derives the channel subscription set from the session's role and
// agency scope. Every session listens on global updates; supervisors
// additionally follow the line pool, agency users their own agency feed.
func Topics(role, agencyID string) []string {
	topics := []string{"global/updates"}
	if role == RoleSupervisor {
		topics = append(topics, "supervisor/lines")
	}
	if agencyID != "" {
		topics = append(topics, fmt.Sprintf("agency/%s/updates", agencyID))
	}
	return topics
}

// Manager maintains the single push-channel connection for a session. It is
// created once at session start and injected into consumers; its lifecycle is
// tied to login/logout, not to process start.
type Manager struct {
	transport   Transport
	bus         *eventbus.Bus
	logger      *slog.Logger
	baseDelay   time.Duration
	maxAttempts int
	sleep       sleeper

	mu       sync.Mutex
	state    State
	attempts int
	params   connectParams
	cancel   context.CancelFunc
	done     chan struct{}
	stream   Stream
}

// NewManager builds a Manager around the given transport. baseDelay is the
// backoff unit (attempt * baseDelay); maxAttempts bounds consecutive
// reconnects before the channel is declared failed.
func NewManager(transport Transport, bus *eventbus.Bus, logger *slog.Logger, baseDelay time.Duration, maxAttempts int) *Manager {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Manager{
		transport:   transport,
		bus:         bus,
		logger:      logger.With("component", "realtime"),
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
		sleep:       realSleep,
		state:       StateIdle,
	}
}

// Connect opens the push channel for the given session. It is idempotent when
// already connected with identical parameters; changed parameters tear down
// the previous subscription first. An absent token is an error and no
// connection is attempted.
func (m *Manager) Connect(ctx context.Context, token, role, agencyID string) error {
	if token == "" {
		return ErrNoCredentials
	}

	p := connectParams{token: token, role: role, agencyID: agencyID}

	m.mu.Lock()
	if m.cancel != nil && m.params == p && m.state != StateFailed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// Replace any existing session before starting the new run loop.
	m.Disconnect()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.params = p
	m.cancel = cancel
	m.done = done
	m.attempts = 0
	m.state = StateConnecting
	m.mu.Unlock()

	go m.run(runCtx, p, done)
	return nil
}

// Disconnect closes the transport and resets the connected state. Safe to
// call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	stream := m.stream
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if stream != nil {
		stream.Close()
	}
	<-done

	m.mu.Lock()
	m.state = StateIdle
	m.attempts = 0
	m.stream = nil
	m.mu.Unlock()
	connectedGauge.Set(0)
}

// Status reports the connection state for the diagnostics UI.
func (m *Manager) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectionStatus{
		IsConnected:       m.state == StateConnected,
		ReconnectAttempts: m.attempts,
		State:             m.state,
	}
}

func (m *Manager) run(ctx context.Context, p connectParams, done chan struct{}) {
	defer close(done)
	channels := Topics(p.role, p.agencyID)

	for {
		m.setState(StateConnecting)
		stream, err := m.transport.Open(ctx, channels, p.token)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(StateIdle)
				return
			}
			m.logger.Warn("push channel open failed", "error", err, "channels", channels)
			if !m.backoff(ctx) {
				return
			}
			continue
		}

		m.mu.Lock()
		m.stream = stream
		m.state = StateConnected
		m.attempts = 0
		m.mu.Unlock()
		connectedGauge.Set(1)
		m.logger.Info("push channel connected", "channels", channels)
		m.bus.Emit(BusEventConnected, nil)

		m.readLoop(ctx, stream)

		connectedGauge.Set(0)
		stream.Close()
		m.mu.Lock()
		m.stream = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			m.setState(StateIdle)
			return
		}
		m.logger.Warn("push channel closed, scheduling reconnect")
		if !m.backoff(ctx) {
			return
		}
	}
}

// backoff waits attempt*baseDelay before the next connect. It returns false
// once the attempt budget is exhausted: the channel then stays failed until a
// fresh Connect, with no user-facing escalation (known gap, kept deliberately).
func (m *Manager) backoff(ctx context.Context) bool {
	m.mu.Lock()
	if m.attempts >= m.maxAttempts {
		m.state = StateFailed
		m.mu.Unlock()
		m.logger.Error("push channel reconnect attempts exhausted, giving up", "attempts", m.maxAttempts)
		return false
	}
	m.attempts++
	attempt := m.attempts
	m.state = StateBackoff
	m.mu.Unlock()

	reconnectsCounter.Inc()
	delay := time.Duration(attempt) * m.baseDelay
	m.logger.Info("push channel reconnecting", "attempt", attempt, "delay", delay)
	if err := m.sleep(ctx, delay); err != nil {
		m.setState(StateIdle)
		return false
	}
	return true
}

func (m *Manager) readLoop(ctx context.Context, stream Stream) {
	for {
		frame, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("push channel read error", "error", err)
			}
			return
		}
		m.handleFrame(ctx, frame)
	}
}

// handleFrame parses and dispatches one inbound frame. A bad frame is logged
// and dropped; it must never close the channel.
func (m *Manager) handleFrame(ctx context.Context, frame []byte) {
	ev, err := DecodeEvent(frame)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownEventType) {
			reason = "unknown_type"
		}
		eventsDroppedCounter.WithLabelValues(reason).Inc()
		m.logger.WarnContext(ctx, "dropping bad push channel frame", "error", err, "frame", string(frame))
		return
	}

	eventsReceivedCounter.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case EventPing:
		// Keepalive, deliberately ignored.
		return
	case EventConnected:
		// Server acknowledged the topic subscription; nothing else to do.
		m.logger.DebugContext(ctx, "push channel subscription acknowledged")
		return
	}

	m.bus.Emit(string(ev.Type), ev)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
