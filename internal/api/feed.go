package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewanmcc/fleetlink-core/internal/broadcast"
)

// feedTypeEvent is the frame type for broadcaster events on the feed.
const feedTypeEvent = "event"

// feedMessage is one frame on the operator feed socket.
type feedMessage struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type"`
	DeviceID  string          `json:"device_id,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// feedUpgrader configures the WebSocket upgrader for the operator feed.
var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleFeed upgrades the HTTP connection to the operator event feed.
// Authentication is via ticket query parameter (obtained from POST
// /auth/ws-ticket) so the session token never appears in a URL.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	if !s.tickets.validateTicket(ticket) {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("feed websocket upgrade failed", "error", err)
		return
	}

	// One broadcaster subscription per feed socket. Events published before
	// this point are not replayed.
	sub := s.events.Subscribe()

	go s.feedWritePump(conn, sub)
	go s.feedReadPump(conn, sub)
}

// feedReadPump discards inbound frames (the feed is one-way) and tears the
// subscription down when the transport closes.
func (s *Server) feedReadPump(conn *websocket.Conn, sub *broadcast.Subscriber) {
	defer func() {
		s.events.Unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debug("feed websocket closed", "error", err)
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// feedWritePump streams broadcaster events to the operator and sends
// protocol pings. Exits when the subscription channel closes.
func (s *Server) feedWritePump(conn *websocket.Conn, sub *broadcast.Subscriber) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				//nolint:errcheck // Best-effort close message
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}

			msg := feedMessage{
				Type:      feedTypeEvent,
				EventType: string(event.Type),
				DeviceID:  event.DeviceID,
				Kind:      string(event.Kind),
				Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
				Payload:   event.Payload,
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal feed event", "error", err)
				continue
			}

			//nolint:errcheck // Best-effort deadline; write error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
