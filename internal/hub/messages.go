package hub

import "encoding/json"

// Device wire protocol frame types. All frames are JSON text messages.
const (
	TypeRegisterDevice      = "register_device"
	TypeRegistrationSuccess = "registration_success"
	TypeRegistrationError   = "registration_error"
	TypeCommand             = "command"
	TypeCommandResponse     = "command_response"
)

// Frame is the envelope for every message on the device channel.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload is the device's registration announcement. All fields
// except Token are advisory; missing or malformed values degrade to
// defaults rather than rejecting the registration.
type RegisterPayload struct {
	Token        string  `json:"token"`
	Name         string  `json:"name"`
	System       string  `json:"system"`
	Version      string  `json:"version"`
	BatteryLevel float64 `json:"battery_level"`
}

// CommandPayload is the server-to-device command envelope forwarded by the
// relay. Data is opaque to the server.
type CommandPayload struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// errorPayload carries the failure reason on a registration_error frame.
type errorPayload struct {
	Error string `json:"error"`
}
