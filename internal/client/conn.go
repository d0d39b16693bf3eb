package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgrange/roomcast/internal/protocol"
)

// WebSocketDialer returns a Dialer backed by gorilla/websocket.
func WebSocketDialer(cfg ConnConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, url string) (Conn, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}

		ws, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, protocol.NewError(protocol.ErrKindDial, err)
		}

		c := &wsConn{
			cfg:        cfg,
			logger:     logger,
			conn:       ws,
			events:     make(chan Event, cfg.BufferSize),
			done:       make(chan struct{}),
			connected:  true,
			lastPingAt: time.Now(),
		}

		// Server sends ping, we respond with pong and note liveness.
		ws.SetPingHandler(func(data string) error {
			c.mu.Lock()
			c.lastPingAt = time.Now()
			c.mu.Unlock()

			return ws.WriteControl(
				websocket.PongMessage,
				[]byte(data),
				time.Now().Add(time.Second),
			)
		})

		go c.readLoop()
		go c.heartbeatLoop()

		logger.Debug("websocket connected", "url", url)

		return c, nil
	}
}

// wsConn implements Conn over a gorilla websocket connection.
// readLoop is the sole writer of the events channel and closes it on
// exit.
type wsConn struct {
	cfg    ConnConfig
	logger *slog.Logger

	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.Mutex
	connected  bool
	closed     bool
	stale      bool
	lastPingAt time.Time
}

// Send writes one frame to the connection.
func (c *wsConn) Send(f protocol.Frame) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return protocol.NewError(protocol.ErrKindWrite, err)
	}
	return nil
}

// Events returns the event stream. It is closed after the connection
// terminates for any reason.
func (c *wsConn) Events() <-chan Event {
	return c.events
}

// Close gracefully closes the connection with a normal status.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// readLoop reads frames until the connection terminates, then emits a
// terminal event and closes the event stream.
func (c *wsConn) readLoop() {
	defer close(c.events)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			stale := c.stale
			c.mu.Unlock()

			// Reads failing after a local Close are expected.
			select {
			case <-c.done:
				return
			default:
			}

			switch {
			case stale:
				c.events <- Event{Err: &protocol.Error{Kind: protocol.ErrKindStale, Detail: "no ping received"}}
			case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				c.events <- Event{Normal: true}
			default:
				c.events <- Event{Err: protocol.NewError(protocol.ErrKindClosed, err)}
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("malformed inbound frame", "error", err)
			continue
		}

		select {
		case c.events <- Event{Frame: &frame}:
		default:
			c.logger.Warn("event buffer full, dropping frame")
		}
	}
}

// heartbeatLoop flags the connection stale and closes the socket when
// the server stops pinging; readLoop then surfaces the failure.
func (c *wsConn) heartbeatLoop() {
	if c.cfg.PingTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.PingTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			lastPing := c.lastPingAt
			c.mu.Unlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.mu.Lock()
				c.stale = true
				c.connected = false
				c.mu.Unlock()
				c.conn.Close()
				return
			}
		}
	}
}
