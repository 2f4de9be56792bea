// Package api provides the HTTP and WebSocket surface of Fleetlink Core.
//
// It exposes operator endpoints (login, two-factor enrolment, device listing,
// command submission, the live event feed) and the unauthenticated device
// WebSocket endpoint whose registration handshake is handled by the hub.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
