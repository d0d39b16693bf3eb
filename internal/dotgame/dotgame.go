// Package dotgame implements the shared-cursor session type: every
// participant owns one colored dot and sees everyone else's move in
// real time.
package dotgame

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rgrange/roomcast/internal/broker"
	"github.com/rgrange/roomcast/internal/protocol"
)

// TypeID is the session type identifier.
const TypeID = "dotgame"

// Position is one participant's dot.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// DotUpdate is broadcast to the other participants on every move.
type DotUpdate struct {
	UserID   string   `json:"userId"`
	Position Position `json:"position"`
}

// Behavior holds the dot positions for one session. The room engine
// serializes hooks per room; the mutex additionally covers snapshot
// reads from outside the hook path.
type Behavior struct {
	logger *slog.Logger

	mu        sync.Mutex
	positions map[string]Position
}

// New is the session type factory.
func New(sessionID, parentContextID string) (broker.Behavior, error) {
	return &Behavior{
		logger:    slog.Default().With("type", TypeID, "session", sessionID),
		positions: make(map[string]Position),
	}, nil
}

// Entry returns the registration metadata for this session type.
func Entry() broker.Entry {
	return broker.Entry{
		TypeID:          TypeID,
		DisplayName:     "Dot Game",
		Description:     "Move your dot around a shared canvas",
		MinParticipants: 1,
		MaxParticipants: 20,
		Factory:         New,
	}
}

// OnJoin sends the new participant a snapshot of the other dots. The
// joiner has no position yet, so the snapshot never includes them.
func (b *Behavior) OnJoin(room *broker.Room, conn broker.Conn, userID string) {
	b.mu.Lock()
	snapshot := make(map[string]Position, len(b.positions))
	for id, pos := range b.positions {
		snapshot[id] = pos
	}
	b.mu.Unlock()

	room.SendTo(conn, protocol.TypeStateSync, protocol.StateSync{
		Type:  protocol.TypeStateSync,
		State: map[string]any{"positions": snapshot},
	})
}

// OnMessage applies a position update and fans it out to everyone but
// the sender.
func (b *Behavior) OnMessage(room *broker.Room, conn broker.Conn, msg broker.Message) {
	switch msg.Event {
	case "update_position":
		userID, ok := room.UserID(conn)
		if !ok {
			return
		}

		var pos Position
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			b.logger.Warn("malformed position update", "user", userID, "error", err)
			return
		}

		b.mu.Lock()
		b.positions[userID] = pos
		b.mu.Unlock()

		room.Broadcast("dot_update", DotUpdate{UserID: userID, Position: pos}, conn)

	default:
		b.logger.Debug("ignoring event", "event", msg.Event)
	}
}

// OnLeave discards the departed participant's dot.
func (b *Behavior) OnLeave(room *broker.Room, conn broker.Conn, userID string) {
	b.mu.Lock()
	delete(b.positions, userID)
	b.mu.Unlock()
}
