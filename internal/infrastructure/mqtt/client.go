package mqtt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives one inbound message. It runs on a paho goroutine,
// so it should hand real work off (the bridge queues per device). A
// returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type route struct {
	qos     byte
	handler MessageHandler
}

// Client is a broker connection whose subscriptions survive reconnects.
// It is safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	online atomic.Bool

	mu           sync.RWMutex
	routes       map[string]route
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

// Connect dials the broker and waits for the first CONNACK. logger may be
// nil. Later drops are handled by paho's reconnect loop.
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := &Client{cfg: cfg, logger: logger}

	opts := clientOptions(cfg).
		SetOnConnectHandler(func(pahomqtt.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.log(func(l Logger) { l.Info("reconnecting to MQTT broker", "broker", brokerURL(cfg.Broker).Host) })
		})

	c.paho = pahomqtt.NewClient(opts)
	if err := wait("connect", brokerURL(cfg.Broker).String(), c.paho.Connect(), connectTimeout); err != nil {
		// Stop the background retry loop started by SetConnectRetry.
		c.paho.Disconnect(0)
		return nil, err
	}
	// The OnConnect hook runs asynchronously; callers may subscribe now.
	c.online.Store(true)
	return c, nil
}

func (c *Client) connected() {
	c.online.Store(true)

	c.mu.RLock()
	routes := make(map[string]route, len(c.routes))
	for topic, r := range c.routes {
		routes[topic] = r
	}
	hook := c.onConnect
	c.mu.RUnlock()

	// A failed resubscribe is retried on the next reconnect.
	for topic, r := range routes {
		c.paho.Subscribe(topic, r.qos, c.deliver(r.handler))
	}
	if hook != nil {
		hook()
	}
}

func (c *Client) lost(err error) {
	c.online.Store(false)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close publishes a graceful offline health message and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		tok := c.paho.Publish(Topics{}.Health(), c.qos(), true, offlineMessage(c.cfg.Broker.ClientID, reasonGraceful))
		tok.WaitTimeout(ackTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.online.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &OpError{Op: "health", Err: err}
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the current link state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

// SetOnConnect registers a hook run after every (re)connect, once
// subscriptions have been restored.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers a hook run when the link drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Client) log(fn func(Logger)) {
	c.mu.RLock()
	l := c.logger
	c.mu.RUnlock()
	if l != nil {
		fn(l)
	}
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated by config
}

func (c *Client) deliver(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.invoke(h, msg.Topic(), msg.Payload())
	}
}

// invoke runs a handler, logging its error and surviving its panic.
func (c *Client) invoke(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log(func(l Logger) { l.Error("MQTT handler panicked", "topic", topic, "panic", r) })
		}
	}()
	if err := h(topic, payload); err != nil {
		c.log(func(l Logger) { l.Warn("MQTT handler failed", "topic", topic, "error", err) })
	}
}

// wait blocks on a paho token and wraps any failure in an *OpError.
func wait(op, topic string, tok pahomqtt.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return &OpError{Op: op, Topic: topic, Err: ErrTimeout}
	}
	if err := tok.Error(); err != nil {
		return &OpError{Op: op, Topic: topic, Err: err}
	}
	return nil
}
