// Fleetlink Core - fleet command and control plane
//
// This is the main entry point for the Fleetlink Core server. It terminates
// persistent WebSocket connections from endpoint devices, tracks the live
// fleet in an in-memory registry, and exposes an authenticated operator API
// for listing devices, sending commands, and watching the event feed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ewanmcc/fleetlink-core/internal/api"
	"github.com/ewanmcc/fleetlink-core/internal/auth"
	"github.com/ewanmcc/fleetlink-core/internal/broadcast"
	"github.com/ewanmcc/fleetlink-core/internal/hub"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/influxdb"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/logging"
	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/mqtt"
	"github.com/ewanmcc/fleetlink-core/internal/registry"
	"github.com/ewanmcc/fleetlink-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Fleetlink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Session authenticator. The TOTP shared secret lives for the life of
	// the process; enrolment material is served by the API.
	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		return fmt.Errorf("initialising authenticator: %w", err)
	}
	log.Info("authenticator initialised", "two_factor", authenticator.TwoFactorEnabled())

	// Live fleet state: registry, event broadcaster, device hub, relay.
	reg := registry.New()
	events := broadcast.New(cfg.WebSocket.SendBufferSize)
	defer events.Close()

	deviceHub := hub.New(cfg.WebSocket, log, authenticator, reg, events)
	go deviceHub.Run(ctx)

	commandRelay := relay.New(log, reg, deviceHub)

	// Connect to MQTT broker (optional event mirror)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT event mirror disabled")
	}

	// Connect to InfluxDB (optional battery telemetry)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Mirror broadcaster events to MQTT and battery telemetry to InfluxDB.
	if mqttClient != nil || influxClient != nil {
		go runEventMirror(ctx, events, mqttClient, influxClient, log)
	}

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.Server,
		WS:       cfg.WebSocket,
		Logger:   log,
		Auth:     authenticator,
		Registry: reg,
		Hub:      deviceHub,
		Relay:    commandRelay,
		Events:   events,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, apiServer, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Event broadcaster

	log.Info("Fleetlink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when the integration is disabled.
func healthCheck(ctx context.Context, apiServer *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// runEventMirror subscribes to the broadcaster and forwards events to the
// optional external sinks: every event to MQTT, battery gauges from
// registration events to InfluxDB. Both paths are fire-and-forget so a slow
// sink never backs up into the connection handlers.
func runEventMirror(
	ctx context.Context,
	events *broadcast.Broadcaster,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	log *logging.Logger,
) {
	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}

			if mqttClient != nil {
				data, err := json.Marshal(event)
				if err != nil {
					log.Error("failed to marshal event for mirror", "error", err)
					continue
				}
				if err := mqttClient.PublishEvent(string(event.Type), event.DeviceID, data); err != nil {
					log.Debug("event mirror publish failed", "type", event.Type, "error", err)
				}
			}

			if influxClient != nil && event.Type == broadcast.EventDeviceRegistered {
				var rec registry.Record
				if err := json.Unmarshal(event.Payload, &rec); err == nil {
					influxClient.WriteBatteryLevel(rec.ID, rec.Name, rec.System, rec.BatteryLevel)
				}
			}
		}
	}
}
