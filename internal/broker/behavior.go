package broker

import (
	"encoding/json"
	"log/slog"

	"github.com/rgrange/roomcast/internal/protocol"
)

// Message is one application message delivered to a room's behavior.
// Data is opaque to the engine.
type Message struct {
	Event string
	Data  json.RawMessage
}

// Behavior customizes how a room handles joins, messages, and leaves.
// Implementations own the room's state; the engine serializes all three
// hooks per room, so no additional locking is required for state only
// touched here.
type Behavior interface {
	// OnJoin runs after the participant is registered and before the
	// user_joined broadcast. The base behavior replies with a full
	// state snapshot to the new connection only.
	OnJoin(room *Room, conn Conn, userID string)

	// OnMessage interprets one application message, typically mutating
	// state and broadcasting the result.
	OnMessage(room *Room, conn Conn, msg Message)

	// OnLeave runs after the participant is unregistered.
	OnLeave(room *Room, conn Conn, userID string)
}

// genericBehavior is the base behavior bound to rooms whose session
// type is unknown or failed to construct. It holds an empty opaque
// state and ignores application messages.
type genericBehavior struct {
	logger *slog.Logger
}

func (b *genericBehavior) OnJoin(room *Room, conn Conn, userID string) {
	room.SendTo(conn, protocol.TypeStateSync, protocol.StateSync{
		Type:  protocol.TypeStateSync,
		State: map[string]any{},
	})
}

func (b *genericBehavior) OnMessage(room *Room, conn Conn, msg Message) {
	b.logger.Debug("generic room ignoring message", "session", room.SessionID(), "event", msg.Event)
}

func (b *genericBehavior) OnLeave(room *Room, conn Conn, userID string) {}
