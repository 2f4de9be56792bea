package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewanmcc/fleetlink-core/internal/broadcast"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
)

// Defaults applied when a registration payload omits or mangles a field.
const (
	defaultDeviceName = "Unknown Device"
	defaultSystem     = "unknown"
	defaultVersion    = "unknown"
)

// Session is one device WebSocket connection. The identity is assigned at
// attach time and never reused; a reconnecting device gets a fresh one.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte

	mu         sync.RWMutex
	registered bool
}

// ID returns the connection identity.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) isRegistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registered
}

func (s *Session) setRegistered() {
	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
}

// readPump reads frames from the device until the transport closes, then
// detaches the session.
func (s *Session) readPump(cfg config.WebSocketConfig) {
	defer func() {
		s.hub.detach(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("device websocket read error", "connection_id", s.id, "error", err)
			} else {
				s.hub.logger.Debug("device websocket closed", "connection_id", s.id, "error", err)
			}
			return
		}
		// Any device message resets the read deadline, keeping the
		// connection alive even when the client never answers pings.
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.handleFrame(message)
	}
}

// writePump writes queued frames to the device and sends protocol pings.
func (s *Session) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound frame.
func (s *Session) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.hub.logger.Debug("discarding malformed device frame", "connection_id", s.id, "error", err)
		return
	}

	switch frame.Type {
	case TypeRegisterDevice:
		s.handleRegister(frame.Payload)
	case TypeCommandResponse:
		s.handleResponse(frame.Payload)
	default:
		s.hub.logger.Debug("ignoring unknown device frame type", "connection_id", s.id, "type", frame.Type)
	}
}

// handleRegister processes a register_device frame. Token verification is the
// only hard gate; every other field degrades to a default. A rejected
// registration leaves the connection open so the device can retry with a
// fresh token.
func (s *Session) handleRegister(payload json.RawMessage) {
	var reg RegisterPayload
	if err := json.Unmarshal(payload, &reg); err != nil {
		// Keep whatever parsed; defaults cover the rest. Token stays
		// empty and fails verification below.
		s.hub.logger.Debug("malformed registration payload", "connection_id", s.id, "error", err)
	}

	if _, err := s.hub.verifier.VerifyToken(reg.Token); err != nil {
		s.hub.logger.Warn("device registration rejected", "connection_id", s.id, "error", err)
		s.sendFrame(TypeRegistrationError, errorPayload{Error: "authentication failed"})
		return
	}

	if reg.Name == "" {
		reg.Name = defaultDeviceName
	}
	if reg.System == "" {
		reg.System = defaultSystem
	}
	if reg.Version == "" {
		reg.Version = defaultVersion
	}

	record := registry.Record{
		ID:           s.id,
		Name:         reg.Name,
		System:       reg.System,
		Version:      reg.Version,
		BatteryLevel: reg.BatteryLevel,
		ConnectedAt:  time.Now().UTC(),
	}
	s.hub.registry.Put(record)
	s.setRegistered()

	s.sendFrame(TypeRegistrationSuccess, nil)

	if data, err := json.Marshal(record); err == nil {
		s.hub.events.Publish(broadcast.Event{
			Type:     broadcast.EventDeviceRegistered,
			DeviceID: s.id,
			Payload:  data,
		})
	}

	s.hub.logger.Info("device registered",
		"connection_id", s.id,
		"name", record.Name,
		"system", record.System,
		"battery_level", record.BatteryLevel,
	)
}

// handleResponse publishes a command_response payload to the broadcaster.
// Responses from unregistered sessions are dropped.
func (s *Session) handleResponse(payload json.RawMessage) {
	if !s.isRegistered() {
		s.hub.logger.Debug("dropping response from unregistered session", "connection_id", s.id)
		return
	}

	// The payload is opaque; only the kind hint is inspected for routing.
	var hint struct {
		Kind broadcast.ResponseKind `json:"kind"`
	}
	//nolint:errcheck // Missing or malformed kind falls through to generic
	json.Unmarshal(payload, &hint)

	kind := hint.Kind
	switch kind {
	case broadcast.KindLocation, broadcast.KindImage:
	default:
		kind = broadcast.KindGeneric
	}

	s.hub.events.Publish(broadcast.Event{
		Type:     broadcast.EventDeviceResponse,
		DeviceID: s.id,
		Kind:     kind,
		Payload:  payload,
	})
}

// sendFrame marshals and queues an outbound frame.
func (s *Session) sendFrame(frameType string, payload any) {
	frame := Frame{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		frame.Payload = data
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.trySend(data)
}

// trySend queues data for the write pump. It silently handles closed
// channels (session detached during delivery) and full buffers.
func (s *Session) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case s.send <- data:
	default:
		// Device buffer full, skip
	}
}
