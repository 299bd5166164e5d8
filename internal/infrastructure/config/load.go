package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix starts every environment override.
const envPrefix = "AIRDOG_"

// envOverride maps one variable onto the config. set returns an error when
// the value cannot be parsed.
type envOverride struct {
	name string
	set  func(c *Config, v string) error
}

var envOverrides = []envOverride{
	{"DATABASE_PATH", func(c *Config, v string) error { c.Database.Path = v; return nil }},
	{"MQTT_HOST", func(c *Config, v string) error { c.MQTT.Broker.Host = v; return nil }},
	{"MQTT_PORT", func(c *Config, v string) error { return setInt(&c.MQTT.Broker.Port, v) }},
	{"MQTT_USERNAME", func(c *Config, v string) error { c.MQTT.Auth.Username = v; return nil }},
	{"MQTT_PASSWORD", func(c *Config, v string) error { c.MQTT.Auth.Password = v; return nil }},
	{"API_HOST", func(c *Config, v string) error { c.API.Host = v; return nil }},
	{"API_PORT", func(c *Config, v string) error { return setInt(&c.API.Port, v) }},
	{"INFLUXDB_TOKEN", func(c *Config, v string) error { c.InfluxDB.Token = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
}

// Load reads the YAML file at path over the defaults, then applies
// AIRDOG_* environment overrides, fills per-device defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies the fixed overrides, then per-device tokens from
// AIRDOG_DEVICE_<ID>_TOKEN with the ID upper-cased and '-' read as '_'.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		v, ok := os.LookupEnv(envPrefix + o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, o.name, err)
		}
	}

	for i := range cfg.Devices {
		if v := os.Getenv(deviceTokenVar(cfg.Devices[i].ID)); v != "" {
			cfg.Devices[i].Token = v
		}
	}
	return nil
}

func deviceTokenVar(id string) string {
	return envPrefix + "DEVICE_" + strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_TOKEN"
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%q is not an integer", v)
	}
	*dst = n
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Site:     SiteConfig{ID: "site-001", Name: "Home"},
		Database: DatabaseConfig{Path: "./data/airdog.db", WALMode: true, BusyTimeout: 5},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "airdog-bridge"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			Port:     8090,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		InfluxDB:  InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Bridge: BridgeConfig{
			HealthInterval:   30,
			CommandTimeout:   10,
			QueueSize:        16,
			HistoryRetention: 24 * 7,
		},
	}
}

func (c *Config) applyDeviceDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			d.Name = DefaultDeviceName
		}
		if d.TimeoutMS == 0 {
			d.TimeoutMS = DefaultSettleDelayMS
		}
		if d.PollInterval == 0 {
			d.PollInterval = DefaultPollInterval
		}
		if d.TransportTimeout == 0 {
			d.TransportTimeout = DefaultTransportTimeout
		}
	}
}
