// Package mqtt provides the optional MQTT event mirror for Fleetlink Core.
//
// When enabled, every event on the internal broadcaster is also published to
// the broker, so external integrations can observe the fleet without holding
// an operator feed socket:
//
//	fleetlink/event/{event_type}/{connection_id}
//
// The client manages:
//   - Connection with auto-reconnect and exponential backoff
//   - Fire-and-forget publishing with QoS from config
//   - Last Will and Testament (LWT) on fleetlink/system/status so
//     subscribers can tell a crash from a graceful shutdown
//   - Connection health checks
//
// Mirroring is one-way. The server never consumes commands from the broker;
// the only command path is the authenticated operator API.
package mqtt
