package client

import (
	"context"
	"errors"
	"time"

	"github.com/rgrange/roomcast/internal/protocol"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrConnecting    = errors.New("connection attempt already in progress")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Event is a transport notification consumed by the Manager's state
// machine. Exactly one of Frame or Err is set, except for a clean
// closure where only Normal is set.
type Event struct {
	Frame  *protocol.Frame
	Err    *protocol.Error
	Normal bool // peer or local side closed with a normal status
}

// Conn is a single established connection. Implementations deliver all
// inbound frames and failures through Events; after a failure or
// closure the events channel is closed.
type Conn interface {
	// Send writes one frame to the connection.
	Send(f protocol.Frame) error

	// Events returns the stream of inbound frames and transport errors.
	Events() <-chan Event

	// Close gracefully closes the connection with a normal status.
	Close() error
}

// Dialer establishes a Conn. The Manager never dials directly so tests
// can substitute transports.
type Dialer func(ctx context.Context, url string) (Conn, error)

// ConnConfig configures a single WebSocket connection.
type ConnConfig struct {
	PingTimeout  time.Duration // max time without a server ping before the connection is stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // event channel buffer size
}

// Config configures a connection Manager.
type Config struct {
	URL                string        // WebSocket URL of the broker
	ReconnectBaseDelay time.Duration // delay for the first reconnect attempt
	ReconnectGrowth    float64       // backoff growth factor per attempt
	MaxReconnects      int           // attempt budget before entering StateFailed
	Conn               ConnConfig

	// Dialer overrides the WebSocket dialer (tests). Nil uses
	// WebSocketDialer(Conn).
	Dialer Dialer

	// Rand overrides the jitter source (tests). Nil uses math/rand.
	Rand func() float64
}

// DefaultConfig returns sensible defaults for a broker at url.
func DefaultConfig(url string) Config {
	return Config{
		URL:                url,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectGrowth:    2.0,
		MaxReconnects:      10,
		Conn: ConnConfig{
			PingTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   256,
		},
	}
}
