package broker

import (
	"errors"
	"testing"
)

func noopFactory(sessionID, parentContextID string) (Behavior, error) {
	return &recordingBehavior{}, nil
}

func validEntry(typeID string) Entry {
	return Entry{
		TypeID:          typeID,
		DisplayName:     "Test Type",
		Description:     "a test session type",
		MinParticipants: 1,
		MaxParticipants: 8,
		Factory:         noopFactory,
	}
}

func TestSessionTypes_Register(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(e *Entry) {},
		},
		{
			name:    "missing type id",
			mutate:  func(e *Entry) { e.TypeID = "" },
			wantErr: true,
		},
		{
			name:    "missing display name",
			mutate:  func(e *Entry) { e.DisplayName = "" },
			wantErr: true,
		},
		{
			name:    "missing description",
			mutate:  func(e *Entry) { e.Description = "" },
			wantErr: true,
		},
		{
			name:    "missing factory",
			mutate:  func(e *Entry) { e.Factory = nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			types := NewSessionTypes(testLogger())
			e := validEntry("t1")
			tt.mutate(&e)

			err := types.Register(e)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionTypes_RegisterDuplicate(t *testing.T) {
	types := NewSessionTypes(testLogger())

	first := validEntry("t1")
	if err := types.Register(first); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	dup := validEntry("t1")
	dup.DisplayName = "Replacement"
	if err := types.Register(dup); err != nil {
		t.Fatalf("duplicate Register errored: %v", err)
	}

	// The original registration wins.
	got, ok := types.Get("t1")
	if !ok {
		t.Fatal("Get failed after duplicate register")
	}
	if got.DisplayName != "Test Type" {
		t.Errorf("DisplayName = %q, want original %q", got.DisplayName, "Test Type")
	}
	if len(types.List()) != 1 {
		t.Errorf("List length = %d, want 1", len(types.List()))
	}
}

func TestSessionTypes_ListSorted(t *testing.T) {
	types := NewSessionTypes(testLogger())
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := types.Register(validEntry(id)); err != nil {
			t.Fatalf("Register(%s) failed: %v", id, err)
		}
	}

	list := types.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(list) != len(want) {
		t.Fatalf("List length = %d, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i].TypeID != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, list[i].TypeID, want[i])
		}
	}
}

func TestSessionTypes_Create(t *testing.T) {
	types := NewSessionTypes(testLogger())
	if err := types.Register(validEntry("ok")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	failing := validEntry("broken")
	failing.Factory = func(sessionID, parentContextID string) (Behavior, error) {
		return nil, errors.New("cannot construct")
	}
	if err := types.Register(failing); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if b := types.Create("ok", "s1", ""); b == nil {
		t.Error("Create for a registered type returned nil")
	}
	if b := types.Create("unknown", "s1", ""); b != nil {
		t.Error("Create for an unknown type returned a behavior")
	}
	if b := types.Create("broken", "s1", ""); b != nil {
		t.Error("Create with a failing factory returned a behavior")
	}
	if b := types.Create("", "s1", ""); b != nil {
		t.Error("Create with an empty type id returned a behavior")
	}
}
