package relay

import "errors"

// Sentinel errors for command submission. Check with errors.Is().
var (
	// ErrMissingParameters is returned when identity or command is empty.
	ErrMissingParameters = errors.New("relay: device id and command are required")

	// ErrStaleConnection is returned when a registered device's transport
	// is dead. The registry entry has been removed by the time the caller
	// sees this error.
	ErrStaleConnection = errors.New("relay: device connection is stale")
)
