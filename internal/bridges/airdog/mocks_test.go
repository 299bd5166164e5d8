package airdog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/device"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-airdog/internal/miio"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

func (m *MockMQTTClient) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.handlers))
	for topic := range m.handlers {
		out = append(out, topic)
	}
	return out
}

// PublishedOn returns messages sent to topic, oldest first.
func (m *MockMQTTClient) PublishedOn(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler whose pattern matches.
func (m *MockMQTTClient) SimulateMessage(t *testing.T, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()

	if handler == nil {
		t.Fatalf("no subscription matches %q", topic)
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler(%q) error = %v", topic, err)
	}
}

func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "+" && p[i] != s[i] {
			return false
		}
	}
	return true
}

// waitForPublish polls until topic has at least n messages.
func (m *MockMQTTClient) waitForPublish(t *testing.T, topic string, n int) []mockPublish {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.PublishedOn(topic); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages on %s (got %d)", n, topic, len(m.PublishedOn(topic)))
	return nil
}

func decode[T any](t *testing.T, p mockPublish) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(p.Payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", p.Topic, err)
	}
	return v
}

type sentCommand struct {
	Method string
	Params []int
}

// mockPurifier emulates an X5 behind the transport interface.
type mockPurifier struct {
	mu sync.Mutex

	power string
	mode  string
	speed int
	lock  string
	pm    int
	clean string

	info    miio.DeviceInfo
	infoErr error
	sendErr error
	readErr error

	sent  []sentCommand
	reads int
}

func newMockPurifier() *mockPurifier {
	return &mockPurifier{
		power: "on",
		mode:  "auto",
		speed: 1,
		lock:  "unlock",
		pm:    12,
		clean: "n",
		info: miio.DeviceInfo{
			Model:           "airdog.airpurifier.x5",
			FirmwareVersion: "1.4.2",
			MAC:             "AA:BB:CC:DD:EE:FF",
		},
	}
}

func (m *mockPurifier) Send(_ context.Context, method string, params []int) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentCommand{Method: method, Params: append([]int(nil), params...)})

	switch method {
	case "set_power":
		if params[0] == 1 {
			m.power = "on"
		} else {
			m.power = "off"
		}
	case "set_wind":
		m.mode = []string{"auto", "manual", "sleep"}[params[0]]
		m.speed = params[1]
	case "set_lock":
		if params[0] == 1 {
			m.lock = "lock"
		} else {
			m.lock = "unlock"
		}
	case "set_clean":
		m.clean = "n"
	}
	return []any{"ok"}, nil
}

func (m *mockPurifier) GetProperties(_ context.Context, names []string, _ int) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	props := map[string]any{
		"power": m.power,
		"mode":  m.mode,
		"speed": float64(m.speed),
		"lock":  m.lock,
		"pm":    float64(m.pm),
		"clean": m.clean,
	}
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = props[n]
	}
	return out, nil
}

func (m *mockPurifier) Info(context.Context) (miio.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.infoErr != nil {
		return miio.DeviceInfo{}, m.infoErr
	}
	return m.info, nil
}

func (m *mockPurifier) Sent() []sentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentCommand(nil), m.sent...)
}

func (m *mockPurifier) set(fn func(m *mockPurifier)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

var errNoRoute = errors.New("read udp: i/o timeout")

// mockInfoRepo records SaveInfo calls.
type mockInfoRepo struct {
	mu    sync.Mutex
	saved map[string]device.Info
}

func (r *mockInfoRepo) SaveInfo(_ context.Context, info device.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[string]device.Info)
	}
	r.saved[info.DeviceID] = info
	return nil
}

func (r *mockInfoRepo) GetInfo(_ context.Context, id string) (*device.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.saved[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return &info, nil
}

func (r *mockInfoRepo) ListInfo(context.Context) ([]device.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Info, 0, len(r.saved))
	for _, info := range r.saved {
		out = append(out, info)
	}
	return out, nil
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	states   []StateUpdate
	commands []CommandOutcome
}

func (o *recordingObserver) OnState(u StateUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, u)
}

func (o *recordingObserver) OnCommand(c CommandOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, c)
}

func (o *recordingObserver) snapshot() ([]StateUpdate, []CommandOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]StateUpdate(nil), o.states...), append([]CommandOutcome(nil), o.commands...)
}
