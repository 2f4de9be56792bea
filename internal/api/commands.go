package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ewanmcc/fleetlink-core/internal/registry"
	"github.com/ewanmcc/fleetlink-core/internal/relay"
)

// commandRequest is the request body for POST /commands.
type commandRequest struct {
	DeviceID string          `json:"device_id"`
	Command  string          `json:"command"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// handleSendCommand forwards a command to a registered device.
//
// 202 means accepted for delivery, nothing more: there is no response wait
// and no delivery guarantee. 404 and 410 are distinct so the operator UI can
// tell "never registered" from "registration just went stale" (the stale
// entry has already been cleaned up).
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.relay.Send(req.DeviceID, req.Command, req.Data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"accepted":  true,
			"device_id": req.DeviceID,
			"command":   req.Command,
		})
	case errors.Is(err, relay.ErrMissingParameters):
		writeError(w, http.StatusBadRequest, ErrCodeMissingParameters, "device_id and command are required")
	case errors.Is(err, registry.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, relay.ErrStaleConnection):
		writeGone(w, "device connection is stale and has been removed")
	default:
		s.logger.Error("command relay failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to relay command")
	}
}
