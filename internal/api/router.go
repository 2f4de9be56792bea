package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Two-factor enrolment. Deliberately unauthenticated: enrolment
		// happens before the operator can obtain a session token.
		r.Get("/twofactor/setup", s.handleTwoFactorSetup)
		r.Post("/twofactor/verify", s.handleTwoFactorVerify)

		// Device channel (no HTTP auth; the session token travels inside
		// the register_device frame).
		r.Get("/device/ws", s.hub.HandleConnection)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Feed ticket requires authentication - the operator must be
			// logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/devices", s.handleListDevices)
			r.Post("/commands", s.handleSendCommand)

			// Operator feed (auth via ticket, validated in handler)
			r.Get("/feed", s.handleFeed)
		})
	})

	return r
}
