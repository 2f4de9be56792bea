package api

import (
	"net/http"

	"github.com/ewanmcc/fleetlink-core/internal/registry"
)

// devicesResponse is the response body for GET /devices.
type devicesResponse struct {
	Devices []registry.Record `json:"devices"`
	Count   int               `json:"count"`
}

// handleListDevices returns a point-in-time snapshot of the live registry.
// Devices that register or disconnect after the snapshot is taken are not
// reflected; clients refresh or watch the feed for changes.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	writeJSON(w, http.StatusOK, devicesResponse{
		Devices: devices,
		Count:   len(devices),
	})
}
