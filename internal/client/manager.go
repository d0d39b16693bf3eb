package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rgrange/roomcast/internal/protocol"
)

// Manager owns exactly one connection to the broker and drives the
// connection lifecycle. It is constructed explicitly and passed to
// consumers; multiple independent managers can coexist in one process.
type Manager struct {
	cfg    Config
	dial   Dialer
	randFn func() float64
	logger *slog.Logger

	channels *Channels

	mu        sync.Mutex
	ctx       context.Context
	state     State
	conn      Conn
	gen       int // connection generation, bumps on every install/teardown
	attempt   int
	timer     *time.Timer
	stopped   bool // explicit Disconnect, suppresses a racing dial
	nextID    int
	listeners map[int]func(State)
}

// NewManager creates a connection manager for the broker at cfg.URL.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	dial := cfg.Dialer
	if dial == nil {
		dial = WebSocketDialer(cfg.Conn, logger)
	}

	randFn := cfg.Rand
	if randFn == nil {
		randFn = rand.Float64
	}

	m := &Manager{
		cfg:       cfg,
		dial:      dial,
		randFn:    randFn,
		logger:    logger,
		ctx:       context.Background(),
		state:     StateDisconnected,
		listeners: make(map[int]func(State)),
	}
	m.channels = newChannels(m, logger)

	return m
}

// Channel returns the channel with the given name, creating it on first
// request. Repeated calls with the same name return the same instance.
func (m *Manager) Channel(name string) *Channel {
	return m.channels.Get(name)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers a listener invoked on every state transition.
// The returned function removes the listener.
func (m *Manager) OnStateChange(fn func(State)) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Connect establishes the connection. It resets the reconnect attempt
// budget, so it also recovers a manager in StateFailed. The context
// bounds this and all future reconnect dials.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return ErrConnecting
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.ctx = ctx
	m.attempt = 0
	m.stopped = false
	m.mu.Unlock()

	return m.open()
}

// Disconnect closes the connection with a normal status and cancels any
// pending reconnect. No reconnection is attempted after an explicit
// disconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.setState(StateDisconnected)
}

// Send writes a frame on the current connection. It fails immediately
// when not connected; frames are never queued.
func (m *Manager) Send(f protocol.Frame) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(f)
}

// open dials once. On failure the next attempt is scheduled; on success
// every registered channel re-issues its subscription.
func (m *Manager) open() error {
	m.setState(StateConnecting)

	conn, err := m.dial(m.ctx, m.cfg.URL)
	if err != nil {
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		m.setState(StateDisconnected)
		m.scheduleReconnect()
		return err
	}

	m.mu.Lock()
	if m.stopped {
		// Disconnect won the race while the dial was in flight.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.gen++
	gen := m.gen
	m.attempt = 0
	m.mu.Unlock()

	m.setState(StateConnected)
	m.logger.Info("connected", "url", m.cfg.URL)

	m.resubscribe(conn)

	go m.readLoop(gen, conn)

	return nil
}

// resubscribe re-issues the subscribe frame for every known channel.
// Subscriptions are durable state of the channel registry, not of the
// transient connection.
func (m *Manager) resubscribe(conn Conn) {
	for _, name := range m.channels.Names() {
		if err := conn.Send(protocol.Subscribe(name)); err != nil {
			m.logger.Warn("resubscribe failed", "channel", name, "error", err)
		}
	}
}

// readLoop consumes transport events for one connection generation.
func (m *Manager) readLoop(gen int, conn Conn) {
	for ev := range conn.Events() {
		if ev.Frame != nil {
			m.handleFrame(*ev.Frame)
			continue
		}
		m.connectionLost(gen, ev)
		return
	}
}

// handleFrame routes one inbound frame.
func (m *Manager) handleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindPublish:
		m.channels.dispatch(f)

	case protocol.KindSystem:
		msgType, err := protocol.MessageType(f.Data)
		if err != nil {
			m.logger.Warn("malformed system message", "error", err)
			return
		}
		if msgType == protocol.TypeError {
			var errMsg protocol.ErrorMessage
			if err := json.Unmarshal(f.Data, &errMsg); err == nil {
				m.logger.Warn("broker error", "message", errMsg.Message)
			}
		}

	default:
		m.logger.Debug("skipping frame kind", "kind", f.Kind)
	}
}

// connectionLost handles a terminal transport event. A normal closure
// ends the lifecycle; anything else schedules a reconnect.
func (m *Manager) connectionLost(gen int, ev Event) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	if ev.Normal {
		m.logger.Info("connection closed")
		m.setState(StateDisconnected)
		return
	}

	m.logger.Warn("connection lost", "kind", ev.Err.Kind, "detail", ev.Err.Detail)
	m.setState(StateDisconnected)
	m.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer for the next attempt, or
// transitions to StateFailed once the attempt budget is exhausted.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.stopped || m.timer != nil {
		m.mu.Unlock()
		return
	}
	if m.attempt >= m.cfg.MaxReconnects {
		attempts := m.attempt
		m.mu.Unlock()
		m.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		m.setState(StateFailed)
		return
	}

	delay := m.reconnectDelay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.timer = nil
		stopped := m.stopped
		m.mu.Unlock()
		if stopped {
			return
		}
		m.logger.Info("attempting reconnection", "attempt", attempt)
		m.open()
	})
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

// reconnectDelay computes the backoff delay for attempt n with ±10%
// jitter: base * growth^n * [0.9, 1.1].
func (m *Manager) reconnectDelay(n int) time.Duration {
	d := float64(m.cfg.ReconnectBaseDelay) * math.Pow(m.cfg.ReconnectGrowth, float64(n))
	jitter := 0.9 + 0.2*m.randFn()
	return time.Duration(d * jitter)
}

// setState applies a transition and notifies listeners outside the lock.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
