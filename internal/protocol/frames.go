package protocol

import "encoding/json"

// Frame kinds.
const (
	KindSubscribe = "subscribe"
	KindPublish   = "publish"
	KindSystem    = "system"
)

// Frame is the unit exchanged over a connection. The payload in Data is
// opaque to the multiplexing layer; only Kind, Channel, and Event are
// interpreted for routing.
type Frame struct {
	Kind    string          `json:"kind"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Subscribe builds a subscribe frame for a channel.
func Subscribe(channel string) Frame {
	return Frame{Kind: KindSubscribe, Channel: channel}
}

// Publish builds a publish frame, marshaling v as the payload.
func Publish(channel, event string, v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindPublish, Channel: channel, Event: event, Data: data}, nil
}

// System builds a system frame carrying a typed message (join_room,
// error, ...) as its payload.
func System(v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindSystem, Data: data}, nil
}

// System message types.
const (
	TypeJoinRoom   = "join_room"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeStateSync  = "state_sync"
	TypeError      = "error"
)

// JoinRoom is the client request to enter a session.
type JoinRoom struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	UserID          string `json:"userId"`
	SessionType     string `json:"sessionType,omitempty"`
	ParentContextID string `json:"parentContextId,omitempty"`
}

// UserJoined announces a new participant to the rest of the room.
type UserJoined struct {
	Type             string `json:"type"`
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

// UserLeft announces a departed participant to the rest of the room.
type UserLeft struct {
	Type             string `json:"type"`
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

// StateSync carries a full state snapshot to a single participant.
// State's shape is private to the session type that produced it.
type StateSync struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

// ErrorMessage is sent to the originating connection only.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// messageEnvelope is used to peek the type discriminator.
type messageEnvelope struct {
	Type string `json:"type"`
}

// MessageType extracts the system message type without a full parse.
func MessageType(data []byte) (string, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", err
	}
	return envelope.Type, nil
}
