// Package hub manages the lifecycle of device WebSocket connections.
//
// Each accepted connection becomes a Session with a per-connection UUID
// identity. A session starts in the open state and becomes registered only
// after the device presents a valid session token inside a register_device
// frame; registration inserts the device into the live registry and announces
// it on the event broadcaster. A failed registration leaves the connection
// open (the device may retry) but unusable for command relay.
//
// On transport disconnect the session is torn down, its registry record is
// removed and a disconnect event is published. There is no application-level
// device heartbeat; liveness is the transport plus lazy stale cleanup by the
// relay.
package hub
