package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second

	// quiesceMillis is how long Disconnect waits for in-flight work.
	quiesceMillis = 1000

	maxQoS = 2
)

// Offline reasons carried in the health payload.
const (
	reasonUnexpected = "unexpected_disconnect"
	reasonGraceful   = "graceful_shutdown"
)

// brokerURL returns tcp://host:port, or ssl://host:port when TLS is on.
func brokerURL(b config.MQTTBrokerConfig) *url.URL {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return &url.URL{Scheme: scheme, Host: net.JoinHostPort(b.Host, strconv.Itoa(b.Port))}
}

// clientOptions maps the bridge config onto paho. The offline Last Will is
// always registered so a crashed bridge shows up on the health topic.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker).String()).
		SetClientID(cfg.Broker.ClientID).
		// Purifier commands are not worth replaying after a restart.
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(Topics{}.Health(), string(offlineMessage(cfg.Broker.ClientID, reasonUnexpected)), 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// healthMessage has the same shape as the bridge's own health reports, so
// one decoder handles both the Last Will and regular updates.
type healthMessage struct {
	Bridge    string `json:"bridge"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func offlineMessage(clientID, reason string) []byte {
	b, _ := json.Marshal(healthMessage{ //nolint:errcheck // strings only
		Bridge:    clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    "offline",
		Reason:    reason,
	})
	return b
}
