package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ewanmcc/fleetlink-core/internal/hub"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/logging"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
)

// stubTransport records delivered frames and can simulate a dead session.
type stubTransport struct {
	frames [][]byte
	err    error
}

func (s *stubTransport) Send(_ string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func newTestRelay(t *testing.T, transport Transport) (*Relay, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	reg.Put(registry.Record{
		ID:          "conn-1",
		Name:        "Test Device",
		System:      "iOS",
		Version:     "17.4",
		ConnectedAt: time.Now().UTC(),
	})
	return New(logging.Default(), reg, transport), reg
}

func TestSend_MissingParameters(t *testing.T) {
	r, _ := newTestRelay(t, &stubTransport{})

	tests := []struct {
		name     string
		identity string
		command  string
	}{
		{"empty identity", "", "ping"},
		{"empty command", "conn-1", ""},
		{"both empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Send(tt.identity, tt.command, nil); !errors.Is(err, ErrMissingParameters) {
				t.Errorf("error = %v, want ErrMissingParameters", err)
			}
		})
	}
}

func TestSend_UnknownDevice(t *testing.T) {
	r, _ := newTestRelay(t, &stubTransport{})

	if err := r.Send("conn-unknown", "ping", nil); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("error = %v, want registry.ErrNotFound", err)
	}
}

func TestSend_ForwardsCommandFrame(t *testing.T) {
	transport := &stubTransport{}
	r, reg := newTestRelay(t, transport)

	data := json.RawMessage(`{"message":"hello"}`)
	if err := r.Send("conn-1", "alert", data); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if len(transport.frames) != 1 {
		t.Fatalf("frames delivered = %d, want 1", len(transport.frames))
	}

	var frame hub.Frame
	if err := json.Unmarshal(transport.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Type != hub.TypeCommand {
		t.Errorf("frame type = %q, want %q", frame.Type, hub.TypeCommand)
	}

	var payload hub.CommandPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Command != "alert" {
		t.Errorf("command = %q, want alert", payload.Command)
	}
	if string(payload.Data) != `{"message":"hello"}` {
		t.Errorf("data = %s, want original payload untouched", payload.Data)
	}

	// Successful hand-off leaves the registration in place.
	if _, err := reg.Get("conn-1"); err != nil {
		t.Errorf("record should survive a successful send: %v", err)
	}
}

func TestSend_NilDataOmitted(t *testing.T) {
	transport := &stubTransport{}
	r, _ := newTestRelay(t, transport)

	if err := r.Send("conn-1", "ping", nil); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	var frame hub.Frame
	if err := json.Unmarshal(transport.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	var payload hub.CommandPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Command != "ping" {
		t.Errorf("command = %q, want ping", payload.Command)
	}
	if len(payload.Data) != 0 {
		t.Errorf("data = %s, want empty", payload.Data)
	}
}

func TestSend_StaleConnectionRemovesRecord(t *testing.T) {
	transport := &stubTransport{err: hub.ErrSessionClosed}
	r, reg := newTestRelay(t, transport)

	err := r.Send("conn-1", "ping", nil)
	if !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("error = %v, want ErrStaleConnection", err)
	}

	// Lazy cleanup: the next attempt reports NotFound, not Stale.
	if _, err := reg.Get("conn-1"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("record should be removed after stale send, got %v", err)
	}
	if err := r.Send("conn-1", "ping", nil); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("second send error = %v, want registry.ErrNotFound", err)
	}
}
