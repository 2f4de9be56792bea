package hub

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ewanmcc/fleetlink-core/internal/auth"
	"github.com/ewanmcc/fleetlink-core/internal/broadcast"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/logging"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
)

// TokenVerifier validates session tokens presented during registration.
// Satisfied by *auth.Authenticator.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// upgrader configures the WebSocket upgrader for the device channel.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Devices are native clients, not browsers; Origin carries no signal.
		return true
	},
}

// Hub owns all live device sessions, keyed by connection identity.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	verifier TokenVerifier
	registry *registry.Registry
	events   *broadcast.Broadcaster

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a Hub. The registry and broadcaster are shared with the relay
// and the operator API.
func New(
	cfg config.WebSocketConfig,
	logger *logging.Logger,
	verifier TokenVerifier,
	reg *registry.Registry,
	events *broadcast.Broadcaster,
) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		verifier: verifier,
		registry: reg,
		events:   events,
		sessions: make(map[string]*Session),
	}
}

// Run blocks until the context is cancelled, then disconnects all sessions.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// HandleConnection upgrades the HTTP request to a device WebSocket session.
// No HTTP-level authentication: the session token arrives inside the
// register_device frame, so a freshly attached session is unauthenticated
// until registration completes.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("device websocket upgrade failed", "error", err)
		return
	}

	session := &Session{
		hub:  h,
		conn: conn,
		id:   uuid.New().String(),
		send: make(chan []byte, h.cfg.SendBufferSize),
	}

	h.attach(session)

	go session.writePump(h.cfg)
	go session.readPump(h.cfg)
}

// Send delivers raw frame data to the registered session with the given
// identity. Returns ErrSessionClosed when no live registered session exists;
// delivery to a live session is fire-and-forget (a full buffer drops the
// frame rather than blocking).
func (h *Hub) Send(identity string, data []byte) error {
	h.mu.RLock()
	session, ok := h.sessions[identity]
	h.mu.RUnlock()

	if !ok || !session.isRegistered() {
		return ErrSessionClosed
	}
	session.trySend(data)
	return nil
}

// SessionCount returns the number of attached sessions, registered or not.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// attach adds a session to the hub.
func (h *Hub) attach(session *Session) {
	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()
	h.logger.Debug("device session attached", "connection_id", session.id, "sessions", h.SessionCount())
}

// detach removes a session. Only the goroutine that removes the session from
// the map closes the send channel, preventing double-close panics during
// shutdown. A registered session's registry record is removed and a
// disconnect event published.
func (h *Hub) detach(session *Session) {
	h.mu.Lock()
	_, existed := h.sessions[session.id]
	delete(h.sessions, session.id)
	h.mu.Unlock()

	if existed {
		close(session.send)
	}

	if session.isRegistered() {
		h.registry.Remove(session.id)
		h.events.Publish(broadcast.Event{
			Type:     broadcast.EventDeviceDisconnected,
			DeviceID: session.id,
		})
	}
	h.logger.Debug("device session detached", "connection_id", session.id, "sessions", h.SessionCount())
}

// closeAll disconnects all sessions and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, session := range h.sessions {
		close(session.send)
		session.conn.Close()
		delete(h.sessions, id)
	}
}
