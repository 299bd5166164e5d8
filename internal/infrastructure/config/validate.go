package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const tokenLength = 32

// problems collects every validation failure so one run reports them all.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(p, "; "))
}

// Validate reports every problem with the configuration in one error.
func (c *Config) Validate() error {
	var p problems

	p.check(c.Site.ID != "", "site.id is required")
	p.check(c.Database.Path != "", "database.path is required")
	p.check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	if c.API.Enabled {
		p.check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled {
		p.check(c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	}
	p.check(c.Bridge.CommandTimeout >= 1, "bridge.command_timeout must be at least 1 second")
	p.check(c.Bridge.QueueSize >= 1, "bridge.queue_size must be at least 1")

	c.validateDevices(&p)
	return p.err()
}

func (c *Config) validateDevices(p *problems) {
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		at := fmt.Sprintf("devices[%d]", i)

		switch {
		case d.ID == "":
			p.check(false, "%s.id is required", at)
		case seen[d.ID]:
			p.check(false, "%s.id %q is duplicated", at, d.ID)
		default:
			p.check(!strings.ContainsAny(d.ID, "/+#"), "%s.id %q must not contain MQTT wildcards or '/'", at, d.ID)
		}
		seen[d.ID] = true

		p.check(d.Host != "", "%s.host is required", at)
		if err := ValidateToken(d.Token); err != nil {
			p.check(false, "%s.token: %v", at, err)
		}
		p.check(d.Model == "" || d.Model == SupportedModel, "%s.model %q is not supported (only %s)", at, d.Model, SupportedModel)
		p.check(d.TimeoutMS >= 0, "%s.timeout_ms must not be negative", at)
		p.check(d.PollInterval >= 1, "%s.poll_interval must be at least 1 second", at)
		p.check(d.TransportTimeout >= 1, "%s.transport_timeout must be positive", at)
	}
}

var errTokenNotHex = errors.New("must be hexadecimal")

// ValidateToken checks that a device token is 32 hexadecimal characters.
func ValidateToken(token string) error {
	if len(token) != tokenLength {
		return fmt.Errorf("must be %d characters, got %d", tokenLength, len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		return errTokenNotHex
	}
	return nil
}
