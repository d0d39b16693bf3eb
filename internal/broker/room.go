package broker

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rgrange/roomcast/internal/protocol"
)

// Room holds the participant set for one session and fans out updates.
// The participant set is guarded by mu; behavior hooks are serialized
// by hookMu so concurrent handlers for the same session cannot
// interleave (hooks may call Broadcast, which only takes mu).
type Room struct {
	sessionID string
	typeID    string
	channel   string
	logger    *slog.Logger

	behavior Behavior

	hookMu sync.Mutex

	mu      sync.Mutex
	parts   map[Conn]string // connection → userID
	skipped int64           // writes skipped on non-open connections
}

// NewRoom creates a room for sessionID bound to behavior. An empty
// typeID produces a generic room.
func NewRoom(sessionID, typeID string, behavior Behavior, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", sessionID)
	if behavior == nil {
		behavior = &genericBehavior{logger: logger}
	}
	return &Room{
		sessionID: sessionID,
		typeID:    typeID,
		channel:   RoomChannel(typeID, sessionID),
		logger:    logger,
		behavior:  behavior,
		parts:     make(map[Conn]string),
	}
}

// RoomChannel returns the channel name carrying a room's traffic.
func RoomChannel(typeID, sessionID string) string {
	if typeID == "" {
		return sessionID
	}
	return typeID + "-" + sessionID
}

// SessionID returns the session identifier.
func (r *Room) SessionID() string {
	return r.sessionID
}

// TypeID returns the session type identifier, empty for generic rooms.
func (r *Room) TypeID() string {
	return r.typeID
}

// Channel returns the channel name carrying this room's traffic.
func (r *Room) Channel() string {
	return r.channel
}

// ParticipantCount returns the current participant count.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parts)
}

// UserID returns the user bound to a connection in this room.
func (r *Room) UserID(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.parts[conn]
	return userID, ok
}

// AddParticipant registers a connection, runs the join hook (which
// typically sends the new connection a state snapshot), and announces
// the join to everyone else.
func (r *Room) AddParticipant(conn Conn, userID string) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.mu.Lock()
	r.parts[conn] = userID
	count := len(r.parts)
	r.mu.Unlock()

	r.logger.Info("participant joined", "user", userID, "participants", count)

	r.safeHook("join", func() { r.behavior.OnJoin(r, conn, userID) })

	r.Broadcast(protocol.TypeUserJoined, protocol.UserJoined{
		Type:             protocol.TypeUserJoined,
		UserID:           userID,
		ParticipantCount: count,
	}, conn)
}

// RemoveParticipant unregisters a connection, runs the leave hook,
// announces the departure, and reports whether the room is now empty.
func (r *Room) RemoveParticipant(conn Conn) bool {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.mu.Lock()
	userID, ok := r.parts[conn]
	if !ok {
		empty := len(r.parts) == 0
		r.mu.Unlock()
		return empty
	}
	delete(r.parts, conn)
	count := len(r.parts)
	r.mu.Unlock()

	r.logger.Info("participant left", "user", userID, "participants", count)

	r.safeHook("leave", func() { r.behavior.OnLeave(r, conn, userID) })

	r.Broadcast(protocol.TypeUserLeft, protocol.UserLeft{
		Type:             protocol.TypeUserLeft,
		UserID:           userID,
		ParticipantCount: count,
	}, nil)

	return count == 0
}

// HandleMessage delivers one application message to the room's
// behavior. Hooks for one room never run concurrently.
func (r *Room) HandleMessage(conn Conn, msg Message) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.safeHook("message", func() { r.behavior.OnMessage(r, conn, msg) })
}

// Broadcast serializes the payload once and writes it to every open
// participant connection, skipping except. Connections that are not
// open are skipped silently, never queued.
func (r *Room) Broadcast(event string, payload any, except Conn) {
	frame, err := protocol.Publish(r.channel, event, payload)
	if err != nil {
		r.logger.Error("marshal broadcast payload", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("marshal broadcast frame", "event", event, "error", err)
		return
	}

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.parts))
	for conn := range r.parts {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	skipped := 0
	for _, conn := range conns {
		if conn == except {
			continue
		}
		if !conn.Open() {
			skipped++
			continue
		}
		if err := conn.Send(data); err != nil {
			r.logger.Warn("broadcast write failed", "event", event, "conn", conn.ID(), "error", err)
		}
	}

	if skipped > 0 {
		r.mu.Lock()
		r.skipped += int64(skipped)
		r.mu.Unlock()
	}
}

// SendTo serializes the payload and writes it to a single connection.
func (r *Room) SendTo(conn Conn, event string, payload any) {
	frame, err := protocol.Publish(r.channel, event, payload)
	if err != nil {
		r.logger.Error("marshal payload", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("marshal frame", "event", event, "error", err)
		return
	}

	if !conn.Open() {
		return
	}
	if err := conn.Send(data); err != nil {
		r.logger.Warn("write failed", "event", event, "conn", conn.ID(), "error", err)
	}
}

// SkippedWrites returns how many broadcast writes were skipped because
// the target connection was not open.
func (r *Room) SkippedWrites() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// safeHook runs one behavior hook, containing panics so a misbehaving
// session type cannot take down sibling rooms or the broker.
func (r *Room) safeHook(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("behavior hook panicked", "hook", name, "panic", rec)
		}
	}()
	fn()
}
