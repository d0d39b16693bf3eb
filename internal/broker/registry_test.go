package broker

import (
	"sync"
	"testing"

	"github.com/rgrange/roomcast/internal/archive"
)

// captureRecorder collects archive events synchronously.
type captureRecorder struct {
	mu     sync.Mutex
	events []archive.Event
}

func (r *captureRecorder) Record(ev archive.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *captureRecorder) kinds() []archive.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]archive.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestTypes(t *testing.T) *SessionTypes {
	t.Helper()
	types := NewSessionTypes(testLogger())
	err := types.Register(Entry{
		TypeID:          "echo",
		DisplayName:     "Echo",
		Description:     "records hook calls",
		MinParticipants: 1,
		MaxParticipants: 4,
		Factory: func(sessionID, parentContextID string) (Behavior, error) {
			return &recordingBehavior{}, nil
		},
	})
	if err != nil {
		t.Fatalf("register session type: %v", err)
	}
	return types
}

func TestRegistry_JoinCreatesRoom(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())
	conn := newTestConn("c1")

	room := reg.Join(conn, "alice", "s1", "echo", "")

	if room.SessionID() != "s1" || room.TypeID() != "echo" {
		t.Errorf("room = %s/%s, want s1/echo", room.SessionID(), room.TypeID())
	}
	if room.ParticipantCount() != 1 {
		t.Errorf("ParticipantCount = %d, want 1", room.ParticipantCount())
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}

	got, ok := reg.Lookup("s1")
	if !ok || got != room {
		t.Error("Lookup did not return the joined room")
	}
	got, ok = reg.RoomFor(conn)
	if !ok || got != room {
		t.Error("RoomFor did not return the joined room")
	}
}

func TestRegistry_JoinUnknownTypeFallsBackToGeneric(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())

	room := reg.Join(newTestConn("c1"), "alice", "s1", "nope", "")

	if room.TypeID() != "" {
		t.Errorf("TypeID = %q, want generic (empty)", room.TypeID())
	}
}

func TestRegistry_SameSessionSharesRoom(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())

	r1 := reg.Join(newTestConn("c1"), "alice", "s1", "echo", "")
	r2 := reg.Join(newTestConn("c2"), "bob", "s1", "echo", "")

	if r1 != r2 {
		t.Error("two joins to the same session produced different rooms")
	}
	if r1.ParticipantCount() != 2 {
		t.Errorf("ParticipantCount = %d, want 2", r1.ParticipantCount())
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistry_LeaveDestroysEmptyRoom(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())
	alice := newTestConn("c1")
	bob := newTestConn("c2")

	reg.Join(alice, "alice", "s1", "echo", "")
	reg.Join(bob, "bob", "s1", "echo", "")

	if destroyed := reg.Leave(alice); destroyed {
		t.Error("room destroyed with a participant remaining")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}

	if destroyed := reg.Leave(bob); !destroyed {
		t.Error("room not destroyed after the last leave")
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}
	if _, ok := reg.Lookup("s1"); ok {
		t.Error("destroyed room still resolvable")
	}

	// Leaving twice is harmless.
	if destroyed := reg.Leave(bob); destroyed {
		t.Error("second Leave reported a destroy")
	}
}

func TestRegistry_RejoinGetsFreshRoom(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())
	conn := newTestConn("c1")

	first := reg.Join(conn, "alice", "s1", "echo", "")
	reg.Leave(conn)
	second := reg.Join(conn, "alice", "s1", "echo", "")

	if first == second {
		t.Error("rejoin after destroy reused the dead room")
	}
}

func TestRegistry_JoinSecondSessionLeavesFirst(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())
	conn := newTestConn("c1")

	first := reg.Join(conn, "alice", "s1", "echo", "")
	second := reg.Join(conn, "alice", "s2", "echo", "")

	if first.ParticipantCount() != 0 {
		t.Errorf("first room still has %d participants", first.ParticipantCount())
	}
	if second.ParticipantCount() != 1 {
		t.Errorf("second room has %d participants, want 1", second.ParticipantCount())
	}
	if _, ok := reg.Lookup("s1"); ok {
		t.Error("emptied first room not destroyed")
	}
	if room, _ := reg.RoomFor(conn); room != second {
		t.Error("RoomFor does not point at the second room")
	}
}

func TestRegistry_GetOrCreateInstallsExisting(t *testing.T) {
	reg := NewRegistry(newTestTypes(t), nil, testLogger())

	custom := NewRoom("s1", "echo", &recordingBehavior{}, testLogger())
	got := reg.GetOrCreate("s1", "echo", "", custom)

	if got != custom {
		t.Error("GetOrCreate did not install the supplied room")
	}
	if found, ok := reg.Lookup("s1"); !ok || found != custom {
		t.Error("installed room not resolvable")
	}
}

func TestRegistry_RecordsLifecycle(t *testing.T) {
	rec := &captureRecorder{}
	reg := NewRegistry(newTestTypes(t), rec, testLogger())
	conn := newTestConn("c1")

	reg.Join(conn, "alice", "s1", "echo", "")
	reg.Leave(conn)

	want := []archive.Kind{
		archive.KindRoomCreated,
		archive.KindUserJoined,
		archive.KindUserLeft,
		archive.KindRoomDestroyed,
	}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("recorded kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kind %d = %q, want %q", i, got[i], want[i])
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	joined := rec.events[1]
	if joined.SessionID != "s1" || joined.UserID != "alice" || joined.ParticipantCount != 1 {
		t.Errorf("user_joined event = %+v", joined)
	}
}
