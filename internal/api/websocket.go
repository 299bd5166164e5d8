package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/logging"
)

// Message types exchanged with websocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// Event channels a client can subscribe to.
const (
	ChannelStateChanged     = "device.state_changed"
	ChannelCommandCompleted = "device.command_completed"
)

var knownChannels = []string{ChannelStateChanged, ChannelCommandCompleted}

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// Replay marks a state event sent from the hub's cache on subscribe
	// rather than from a live update.
	Replay bool `json:"replay,omitempty"`

	Payload any `json:"payload,omitempty"`
}

// SubscribeRequest is the payload of subscribe and unsubscribe messages.
// An empty Devices list means every purifier.
type SubscribeRequest struct {
	Channels []string `json:"channels"`
	Devices  []string `json:"devices,omitempty"`
}

// inbound is WSMessage with the payload left undecoded.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StateEvent is the payload of a device.state_changed event.
type StateEvent struct {
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name"`
	Model     string         `json:"model,omitempty"`
	Available bool           `json:"available"`
	IsOn      *bool          `json:"is_on"`
	State     map[string]any `json:"state"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// CommandEvent is the payload of a device.command_completed event.
type CommandEvent struct {
	CommandID  string `json:"command_id,omitempty"`
	DeviceID   string `json:"device_id"`
	Command    string `json:"command"`
	Source     string `json:"source,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Hub fans bridge events out to websocket clients and remembers the last
// state of each purifier so new subscribers start with a full picture.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	latest  map[string]StateEvent
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		latest:  make(map[string]StateEvent),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister is safe to call more than once.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// OnState implements airdog.Observer.
func (h *Hub) OnState(u airdog.StateUpdate) {
	ev := StateEvent{
		DeviceID:  u.DeviceID,
		Name:      u.Name,
		Model:     u.Model,
		Available: u.State.Available,
		IsOn:      u.State.IsOn,
		State:     u.State.Attributes,
		Source:    u.Source,
		Timestamp: u.Timestamp.UTC(),
	}

	h.mu.Lock()
	h.latest[u.DeviceID] = ev
	h.mu.Unlock()

	h.publish(ChannelStateChanged, u.DeviceID, ev)
}

// OnCommand implements airdog.Observer.
func (h *Hub) OnCommand(o airdog.CommandOutcome) {
	ev := CommandEvent{
		CommandID:  o.CommandID,
		DeviceID:   o.DeviceID,
		Command:    o.Command,
		Source:     o.Source,
		Outcome:    string(o.Result.Outcome),
		DurationMS: o.Elapsed.Milliseconds(),
	}
	if o.Result.Err != nil {
		ev.Error = o.Result.Err.Error()
	}
	h.publish(ChannelCommandCompleted, o.DeviceID, ev)
}

// publish encodes one event and queues it on every client whose
// subscription matches. The client set is copied so no client lock is
// taken while the hub lock is held.
func (h *Hub) publish(channel, deviceID string, payload any) {
	data, err := encodeEvent(channel, payload, false)
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.wants(channel, deviceID) && c.enqueue(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "device_id", deviceID, "recipients", sent)
	}
}

// replayStates queues the cached state of every purifier c wants.
func (h *Hub) replayStates(c *wsClient) {
	h.mu.RLock()
	events := make([]StateEvent, 0, len(h.latest))
	for _, ev := range h.latest {
		events = append(events, ev)
	}
	h.mu.RUnlock()

	slices.SortFunc(events, func(a, b StateEvent) int { return strings.Compare(a.DeviceID, b.DeviceID) })
	for _, ev := range events {
		if !c.wants(ChannelStateChanged, ev.DeviceID) {
			continue
		}
		if data, err := encodeEvent(ChannelStateChanged, ev, true); err == nil {
			c.enqueue(data)
		}
	}
}

func encodeEvent(channel string, payload any, replay bool) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Replay:    replay,
		Payload:   payload,
	})
}

// wsClient is one websocket connection. send is never closed; done tells
// the write pump to stop.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done     chan struct{}
	doneOnce sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
	devices  map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
		devices:  make(map[string]struct{}),
	}
}

func (c *wsClient) shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// enqueue drops the frame when the client is gone or its buffer is full.
func (c *wsClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) wants(channel, deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

func (c *wsClient) subscribe(req SubscribeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range req.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, id := range req.Devices {
		c.devices[id] = struct{}{}
	}
}

func (c *wsClient) unsubscribe(req SubscribeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range req.Channels {
		delete(c.channels, ch)
	}
	for _, id := range req.Devices {
		delete(c.devices, id)
	}
}

// handleWebSocket upgrades the connection. The optional channels and
// devices query parameters (comma separated) subscribe the client up front.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pre := SubscribeRequest{
		Channels: splitList(q.Get("channels")),
		Devices:  splitList(q.Get("devices")),
	}
	if bad := unknownChannels(pre.Channels); len(bad) > 0 {
		fail(w, r, http.StatusBadRequest, "unknown channel: "+strings.Join(bad, ", "))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	client.subscribe(pre)
	s.hub.register(client)
	if slices.Contains(pre.Channels, ChannelStateChanged) {
		s.hub.replayStates(client)
	}

	go client.writePump(s.hub.cfg)
	go client.readPump(s.hub.cfg)
}

// Origin checks are left to the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (c *wsClient) readPump(cfg config.WebSocketConfig) {
	defer c.hub.unregister(c)

	keepAlive := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(keepAlive)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		_ = extend()
		c.handle(data)
	}
}

func (c *wsClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer ticker.Stop()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			_ = write(websocket.CloseMessage, nil)
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

// handle processes one inbound frame.
func (c *wsClient) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)

	case WSTypeSubscribe, WSTypeUnsubscribe:
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || len(req.Channels)+len(req.Devices) == 0 {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": "payload needs channels or devices"})
			return
		}
		if bad := unknownChannels(req.Channels); len(bad) > 0 {
			c.reply(msg.ID, WSTypeError, map[string]any{
				"message": "unknown channel",
				"unknown": bad,
				"valid":   knownChannels,
			})
			return
		}

		if msg.Type == WSTypeUnsubscribe {
			c.unsubscribe(req)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": req})
			return
		}
		c.subscribe(req)
		c.hub.logger.Debug("websocket client subscribed", "channels", req.Channels, "devices", req.Devices)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": req})
		if slices.Contains(req.Channels, ChannelStateChanged) {
			c.hub.replayStates(c)
		}

	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *wsClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}

func unknownChannels(channels []string) []string {
	var bad []string
	for _, ch := range channels {
		if !slices.Contains(knownChannels, ch) {
			bad = append(bad, ch)
		}
	}
	return bad
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
