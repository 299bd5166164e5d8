package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// SupportedModel is the only purifier model the bridge knows how to drive.
const SupportedModel = "airdog.airpurifier.x5"

// Device defaults, matching the values the purifier integration has always used.
const (
	DefaultDeviceName       = "Xiaomi Miio Device"
	DefaultSettleDelayMS    = 500
	DefaultPollInterval     = 30
	DefaultTransportTimeout = 5000

	redacted = "[REDACTED]"
)

// Config is the root configuration structure for the Airdog bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	// WARNING: Never log this value. Use String() for safe logging.
	Password string `yaml:"password"`
}

// String returns a string representation with the password masked.
func (a MQTTAuthConfig) String() string {
	password := ""
	if a.Password != "" {
		password = redacted
	}
	return fmt.Sprintf("MQTTAuthConfig{Username:%q, Password:%s}", a.Username, password)
}

// MarshalJSON implements json.Marshaler to redact the password.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	type plain MQTTAuthConfig
	safe := plain(a)
	if safe.Password != "" {
		safe.Password = redacted
	}
	return json.Marshal(safe)
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// Addr is the host:port the API listens on.
func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ReadTimeout also bounds reading request headers.
func (a APIConfig) ReadTimeout() time.Duration { return seconds(a.Timeouts.Read) }

func (a APIConfig) WriteTimeout() time.Duration { return seconds(a.Timeouts.Write) }

func (a APIConfig) IdleTimeout() time.Duration { return seconds(a.Timeouts.Idle) }

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// BridgeConfig contains settings for the purifier MQTT bridge.
type BridgeConfig struct {
	// HealthInterval is how often health is published (seconds).
	HealthInterval int `yaml:"health_interval"`

	// CommandTimeout bounds a single command including the settle delay (seconds).
	CommandTimeout int `yaml:"command_timeout"`

	// QueueSize is the per-device command queue depth.
	QueueSize int `yaml:"queue_size"`

	// HistoryRetention is how long state history and the command audit log are
	// kept (hours). 0 disables pruning.
	HistoryRetention int `yaml:"history_retention"`
}

// DeviceConfig describes one purifier reachable over the local network.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Host string `yaml:"host"`

	// Token is the 32 character hex device token.
	// WARNING: Never log this value.
	Token string `yaml:"token"`

	// Model is optional; when empty it is detected from the device at start.
	Model string `yaml:"model"`

	// TimeoutMS is the settle delay after each command, in milliseconds.
	TimeoutMS int `yaml:"timeout_ms"`

	// PollInterval is the status poll period in seconds.
	PollInterval int `yaml:"poll_interval"`

	// TransportTimeout bounds one UDP round trip, in milliseconds.
	TransportTimeout int `yaml:"transport_timeout"`
}

// SettleDelay returns the post-command wait as a Duration.
func (d DeviceConfig) SettleDelay() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// PollPeriod returns the poll interval as a Duration.
func (d DeviceConfig) PollPeriod() time.Duration {
	return time.Duration(d.PollInterval) * time.Second
}

// RoundTripTimeout returns the transport timeout as a Duration.
func (d DeviceConfig) RoundTripTimeout() time.Duration {
	return time.Duration(d.TransportTimeout) * time.Millisecond
}

// String returns a string representation with the token masked.
func (d DeviceConfig) String() string {
	token := ""
	if d.Token != "" {
		token = redacted
	}
	return fmt.Sprintf("DeviceConfig{ID:%q, Name:%q, Host:%q, Token:%s, Model:%q}",
		d.ID, d.Name, d.Host, token, d.Model)
}

// MarshalJSON implements json.Marshaler to redact the token.
func (d DeviceConfig) MarshalJSON() ([]byte, error) {
	type plain DeviceConfig
	safe := plain(d)
	if safe.Token != "" {
		safe.Token = redacted
	}
	return json.Marshal(safe)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
