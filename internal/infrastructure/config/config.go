package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Fleetlink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings shared by the device channel and the
// operator feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	SendBufferSize int `yaml:"send_buffer_size"`
}

// AuthConfig contains operator credential and session token settings.
type AuthConfig struct {
	// AdminUsername and AdminPassword are the configured operator credentials.
	// The credential store is process-wide and read-only after startup.
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`

	TwoFactor TwoFactorConfig `yaml:"two_factor"`
	JWT       JWTConfig       `yaml:"jwt"`
}

// TwoFactorConfig contains TOTP second-factor settings.
type TwoFactorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Issuer  string `yaml:"issuer"`
}

// JWTConfig contains session token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the session token validity window in hours.
	TokenTTL int `yaml:"token_ttl"`
}

// MQTTConfig contains settings for the optional MQTT event mirror.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains settings for the optional battery telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEETLINK_SECTION_KEY
// For example: FLEETLINK_SERVER_PORT, FLEETLINK_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Auth: AuthConfig{
			TwoFactor: TwoFactorConfig{
				Enabled: false,
				Issuer:  "Fleetlink",
			},
			JWT: JWTConfig{
				TokenTTL: 24,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLEETLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("FLEETLINK_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FLEETLINK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Operator credentials
	if v := os.Getenv("FLEETLINK_ADMIN_USERNAME"); v != "" {
		cfg.Auth.AdminUsername = v
	}
	if v := os.Getenv("FLEETLINK_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("FLEETLINK_TWO_FACTOR_ENABLED"); v != "" {
		cfg.Auth.TwoFactor.Enabled = v == "true" || v == "1"
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("FLEETLINK_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}

	// MQTT
	if v := os.Getenv("FLEETLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FLEETLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// minJWTSecretLength is the minimum accepted JWT signing secret length.
// Session tokens gate command dispatch to real devices; a guessable secret
// would let an attacker forge operator sessions.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Auth.AdminUsername == "" {
		errs = append(errs, "auth.admin_username is required (set FLEETLINK_ADMIN_USERNAME environment variable)")
	}
	if c.Auth.AdminPassword == "" {
		errs = append(errs, "auth.admin_password is required (set FLEETLINK_ADMIN_PASSWORD environment variable)")
	}

	if c.Auth.JWT.Secret == "" {
		errs = append(errs, "auth.jwt.secret is required (set FLEETLINK_JWT_SECRET environment variable)")
	} else if len(c.Auth.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "auth.jwt.secret must be at least 32 characters for adequate security")
	}
	if c.Auth.JWT.TokenTTL <= 0 {
		errs = append(errs, "auth.jwt.token_ttl must be positive")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}
