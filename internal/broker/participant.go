package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one participant connection as seen by rooms. The websocket
// implementation is participant; tests substitute fakes.
type Conn interface {
	// ID uniquely identifies the connection within the process.
	ID() string

	// Send writes one serialized frame.
	Send(data []byte) error

	// Open reports whether the underlying transport accepts writes.
	Open() bool
}

// participant wraps one websocket connection.
type participant struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu   sync.Mutex
	open bool
}

func newParticipant(ws *websocket.Conn, writeTimeout time.Duration) *participant {
	return &participant{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
		open:         true,
	}
}

func (p *participant) ID() string {
	return p.id
}

func (p *participant) Send(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.ws.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.ws.WriteMessage(websocket.TextMessage, data)
}

func (p *participant) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *participant) markClosed() {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
}
