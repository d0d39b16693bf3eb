package broker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rgrange/roomcast/internal/archive"
)

// Recorder receives room lifecycle events for the analytics archive.
type Recorder interface {
	Record(ev archive.Event)
}

// Registry maps session ids to live rooms. Rooms are created on first
// join and destroyed when the last participant leaves.
type Registry struct {
	logger *slog.Logger
	types  *SessionTypes
	rec    Recorder // nil disables archiving

	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[Conn]*Room
}

// NewRegistry creates an empty room registry. rec may be nil.
func NewRegistry(types *SessionTypes, rec Recorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		types:  types,
		rec:    rec,
		rooms:  make(map[string]*Room),
		byConn: make(map[Conn]*Room),
	}
}

// GetOrCreate resolves the room for sessionID. A supplied existing room
// is installed directly (used when upgrading a generic room into a
// specialized one); otherwise a live room is returned unchanged, and
// failing that a new room is constructed: specialized when typeID
// names a registered session type, generic otherwise.
func (r *Registry) GetOrCreate(sessionID, typeID, parentContextID string, existing *Room) *Room {
	r.mu.Lock()

	if existing != nil {
		r.rooms[sessionID] = existing
		r.mu.Unlock()
		return existing
	}

	if room, ok := r.rooms[sessionID]; ok {
		r.mu.Unlock()
		return room
	}
	r.mu.Unlock()

	// Construct outside the lock; factories may be slow. A racing
	// create for the same session is resolved below.
	behavior := r.types.Create(typeID, sessionID, parentContextID)
	boundType := typeID
	if behavior == nil {
		boundType = ""
	}
	room := NewRoom(sessionID, boundType, behavior, r.logger)

	r.mu.Lock()
	if prior, ok := r.rooms[sessionID]; ok {
		r.mu.Unlock()
		return prior
	}
	r.rooms[sessionID] = room
	r.mu.Unlock()

	r.logger.Info("room created", "session", sessionID, "type", boundType)
	r.record(archive.Event{
		At:          time.Now(),
		SessionID:   sessionID,
		SessionType: boundType,
		Kind:        archive.KindRoomCreated,
	})

	return room
}

// Join places a connection into the room for sessionID, creating the
// room if needed. A connection belongs to at most one room; joining a
// second session leaves the first.
func (r *Registry) Join(conn Conn, userID, sessionID, typeID, parentContextID string) *Room {
	r.mu.Lock()
	prior := r.byConn[conn]
	r.mu.Unlock()

	if prior != nil && prior.SessionID() != sessionID {
		r.Leave(conn)
	}

	room := r.GetOrCreate(sessionID, typeID, parentContextID, nil)

	r.mu.Lock()
	r.byConn[conn] = room
	r.mu.Unlock()

	room.AddParticipant(conn, userID)

	r.record(archive.Event{
		At:               time.Now(),
		SessionID:        sessionID,
		SessionType:      room.TypeID(),
		Kind:             archive.KindUserJoined,
		UserID:           userID,
		ParticipantCount: room.ParticipantCount(),
	})

	return room
}

// Leave removes the connection from its room. When this empties the
// room, the room is destroyed and true is returned.
func (r *Registry) Leave(conn Conn) bool {
	r.mu.Lock()
	room, ok := r.byConn[conn]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byConn, conn)
	r.mu.Unlock()

	userID, _ := room.UserID(conn)
	empty := room.RemoveParticipant(conn)

	r.record(archive.Event{
		At:               time.Now(),
		SessionID:        room.SessionID(),
		SessionType:      room.TypeID(),
		Kind:             archive.KindUserLeft,
		UserID:           userID,
		ParticipantCount: room.ParticipantCount(),
	})

	if !empty {
		return false
	}

	r.mu.Lock()
	// Only destroy if no concurrent join revived the session.
	if current, ok := r.rooms[room.SessionID()]; ok && current == room && room.ParticipantCount() == 0 {
		delete(r.rooms, room.SessionID())
		r.mu.Unlock()

		r.logger.Info("room destroyed", "session", room.SessionID())
		r.record(archive.Event{
			At:          time.Now(),
			SessionID:   room.SessionID(),
			SessionType: room.TypeID(),
			Kind:        archive.KindRoomDestroyed,
		})
		return true
	}
	r.mu.Unlock()
	return false
}

// RoomFor returns the room a connection currently belongs to.
func (r *Registry) RoomFor(conn Conn) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byConn[conn]
	return room, ok
}

// Lookup returns the live room for a session id.
func (r *Registry) Lookup(sessionID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[sessionID]
	return room, ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) record(ev archive.Event) {
	if r.rec != nil {
		r.rec.Record(ev)
	}
}
