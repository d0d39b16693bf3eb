package broker

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgrange/roomcast/internal/config"
	"github.com/rgrange/roomcast/internal/protocol"
)

// Handler upgrades HTTP requests to websocket connections and drives
// one read loop per participant.
type Handler struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	registry *Registry
	types    *SessionTypes
	upgrader websocket.Upgrader
}

// NewHandler creates the broker's HTTP handler.
func NewHandler(cfg config.ServerConfig, registry *Registry, types *SessionTypes, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		types:    types,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

// Routes returns the broker's HTTP mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/sessions/types", h.handleListTypes)
	mux.HandleFunc("/health", h.handleHealth)
	return mux
}

// checkOrigin allows any origin when no allow-list is configured.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// handleWS upgrades the connection and serves it until it closes.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newParticipant(ws, h.cfg.WriteTimeout)
	h.logger.Info("connection opened", "conn", p.ID(), "remote", r.RemoteAddr)

	go h.pingLoop(p)
	h.readLoop(p)
}

// pingLoop keeps the connection alive; clients detect staleness from
// missing pings.
func (h *Handler) pingLoop(p *participant) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !p.Open() {
			return
		}
		p.writeMu.Lock()
		err := p.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		p.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// readLoop processes frames from one connection until it closes, then
// removes the participant from its room.
func (h *Handler) readLoop(p *participant) {
	defer func() {
		p.markClosed()
		if emptied := h.registry.Leave(p); emptied {
			h.logger.Debug("last participant left", "conn", p.ID())
		}
		p.ws.Close()
		h.logger.Info("connection closed", "conn", p.ID())
	}()

	if h.cfg.ReadLimit > 0 {
		p.ws.SetReadLimit(h.cfg.ReadLimit)
	}

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("malformed frame", "conn", p.ID(), "error", err)
			h.sendError(p, "malformed frame")
			continue
		}

		h.handleFrame(p, frame)
	}
}

// handleFrame routes one inbound frame. Failures affect only the
// originating connection.
func (h *Handler) handleFrame(p *participant, frame protocol.Frame) {
	switch frame.Kind {
	case protocol.KindSubscribe:
		// Bookkeeping only; the broker addresses participants through
		// their room, not through subscription state.
		h.logger.Debug("subscribe", "conn", p.ID(), "channel", frame.Channel)

	case protocol.KindSystem:
		h.handleSystem(p, frame.Data)

	case protocol.KindPublish:
		room, ok := h.registry.RoomFor(p)
		if !ok {
			h.logger.Warn("publish from connection outside any room", "conn", p.ID(), "channel", frame.Channel)
			return
		}
		room.HandleMessage(p, Message{Event: frame.Event, Data: frame.Data})

	default:
		h.sendError(p, "unknown frame kind")
	}
}

// handleSystem processes broker-level messages.
func (h *Handler) handleSystem(p *participant, data json.RawMessage) {
	msgType, err := protocol.MessageType(data)
	if err != nil {
		h.sendError(p, "malformed system message")
		return
	}

	switch msgType {
	case protocol.TypeJoinRoom:
		var join protocol.JoinRoom
		if err := json.Unmarshal(data, &join); err != nil {
			h.sendError(p, "malformed join request")
			return
		}
		h.handleJoin(p, join)

	default:
		h.logger.Debug("ignoring system message", "conn", p.ID(), "type", msgType)
	}
}

// handleJoin validates and executes a join request.
func (h *Handler) handleJoin(p *participant, join protocol.JoinRoom) {
	if join.SessionID == "" || join.UserID == "" {
		h.sendError(p, "join_room requires sessionId and userId")
		return
	}

	if entry, ok := h.types.Get(join.SessionType); ok && entry.MaxParticipants > 0 {
		if room, live := h.registry.Lookup(join.SessionID); live && room.ParticipantCount() >= entry.MaxParticipants {
			h.sendError(p, "session is full")
			return
		}
	}

	room := h.registry.Join(p, join.UserID, join.SessionID, join.SessionType, join.ParentContextID)
	h.logger.Info("joined session",
		"conn", p.ID(),
		"user", join.UserID,
		"session", join.SessionID,
		"type", room.TypeID(),
	)
}

// sendError replies to the originating connection only.
func (h *Handler) sendError(p *participant, message string) {
	frame, err := protocol.System(protocol.ErrorMessage{
		Type:    protocol.TypeError,
		Message: message,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := p.Send(data); err != nil {
		h.logger.Debug("error reply failed", "conn", p.ID(), "error", err)
	}
}

// handleListTypes serves session-type metadata for lobby UIs.
func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.types.List()); err != nil {
		h.logger.Warn("encode session types", "error", err)
	}
}

// handleHealth reports liveness and the current room count.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  h.registry.Len(),
	})
}
