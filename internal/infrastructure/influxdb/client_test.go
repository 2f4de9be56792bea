package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}

	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWriteBatteryLevelDisconnected(t *testing.T) {
	client := &Client{}

	// Must be a silent no-op, not a nil dereference.
	client.WriteBatteryLevel("conn-1", "Test Device", "iOS", 0.85)
}

func TestFlushDisconnected(t *testing.T) {
	client := &Client{}
	client.Flush()
}
