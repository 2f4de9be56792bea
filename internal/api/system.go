package api

import (
	"net/http"
	"time"
)

// handleHealth returns the server health status along with the live device
// count and whether two-factor login is enforced.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"connected_devices":  s.registry.Count(),
		"two_factor_enabled": s.auth.TwoFactorEnabled(),
		"version":            s.version,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}
