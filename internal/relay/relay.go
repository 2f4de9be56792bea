package relay

import (
	"encoding/json"
	"fmt"

	"github.com/ewanmcc/fleetlink-core/internal/hub"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/logging"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
)

// Transport delivers raw frames to a live session. Satisfied by *hub.Hub.
type Transport interface {
	Send(identity string, data []byte) error
}

// Relay validates and forwards commands to registered devices.
type Relay struct {
	logger    *logging.Logger
	registry  *registry.Registry
	transport Transport
}

// New creates a Relay sharing the hub's registry.
func New(logger *logging.Logger, reg *registry.Registry, transport Transport) *Relay {
	return &Relay{
		logger:    logger,
		registry:  reg,
		transport: transport,
	}
}

// Send forwards a command to the device behind the given connection identity.
//
// Returns ErrMissingParameters when identity or command is empty,
// registry.ErrNotFound when no device is registered under the identity, and
// ErrStaleConnection when the registry record exists but the transport is
// dead (the record is removed before returning). A nil return means the
// command was handed off; command names and data are opaque to the server.
func (r *Relay) Send(identity, command string, data json.RawMessage) error {
	if identity == "" || command == "" {
		return ErrMissingParameters
	}

	if _, err := r.registry.Get(identity); err != nil {
		return err
	}

	payload, err := json.Marshal(hub.CommandPayload{Command: command, Data: data})
	if err != nil {
		return fmt.Errorf("relay: encode command payload: %w", err)
	}
	frame, err := json.Marshal(hub.Frame{Type: hub.TypeCommand, Payload: payload})
	if err != nil {
		return fmt.Errorf("relay: encode command frame: %w", err)
	}

	if err := r.transport.Send(identity, frame); err != nil {
		// The record outlived its connection; clean up so later lookups
		// report NotFound instead of Stale.
		r.registry.Remove(identity)
		r.logger.Warn("removed stale device registration",
			"connection_id", identity,
			"command", command,
			"error", err,
		)
		return fmt.Errorf("%w: %s", ErrStaleConnection, identity)
	}

	r.logger.Info("command relayed", "connection_id", identity, "command", command)
	return nil
}
