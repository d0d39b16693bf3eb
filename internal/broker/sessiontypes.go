package broker

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory produces the behavior for one new room of a session type.
type Factory func(sessionID, parentContextID string) (Behavior, error)

// Entry describes one registered session type.
type Entry struct {
	TypeID          string  `json:"typeId"`
	DisplayName     string  `json:"displayName"`
	Description     string  `json:"description"`
	MinParticipants int     `json:"minParticipants"`
	MaxParticipants int     `json:"maxParticipants"`
	Factory         Factory `json:"-"`
}

// SessionTypes maps session-type identifiers to room behavior
// factories.
type SessionTypes struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewSessionTypes creates an empty session type registry.
func NewSessionTypes(logger *slog.Logger) *SessionTypes {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTypes{
		logger:  logger,
		entries: make(map[string]Entry),
	}
}

// Register adds a session type. Required metadata must be present; a
// duplicate type id is a no-op with a warning, not an error.
func (s *SessionTypes) Register(e Entry) error {
	if e.TypeID == "" {
		return fmt.Errorf("session type: typeId is required")
	}
	if e.DisplayName == "" {
		return fmt.Errorf("session type %q: displayName is required", e.TypeID)
	}
	if e.Description == "" {
		return fmt.Errorf("session type %q: description is required", e.TypeID)
	}
	if e.Factory == nil {
		return fmt.Errorf("session type %q: factory is required", e.TypeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.TypeID]; exists {
		s.logger.Warn("session type already registered, ignoring", "type", e.TypeID)
		return nil
	}

	s.entries[e.TypeID] = e
	s.logger.Info("session type registered", "type", e.TypeID, "name", e.DisplayName)
	return nil
}

// Get returns the entry for a type id.
func (s *SessionTypes) Get(typeID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[typeID]
	return e, ok
}

// List returns all registered entries sorted by type id.
func (s *SessionTypes) List() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].TypeID < entries[j].TypeID })
	return entries
}

// Create resolves a type id and invokes its factory. An unknown type or
// a factory failure yields nil, letting the caller fall back to a
// generic room rather than failing the join.
func (s *SessionTypes) Create(typeID, sessionID, parentContextID string) Behavior {
	if typeID == "" {
		return nil
	}

	e, ok := s.Get(typeID)
	if !ok {
		s.logger.Warn("unknown session type, using generic room", "type", typeID, "session", sessionID)
		return nil
	}

	behavior, err := e.Factory(sessionID, parentContextID)
	if err != nil {
		s.logger.Error("session type factory failed, using generic room",
			"type", typeID,
			"session", sessionID,
			"error", err,
		)
		return nil
	}
	return behavior
}
