package airdog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-airdog/internal/audit"
	"github.com/nerrad567/gray-logic-airdog/internal/device"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-airdog/internal/miio"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// Bridge operation constants.
const (
	defaultCommandTimeout = 10 * time.Second
	defaultQueueSize      = 16
	defaultPollInterval   = 30 * time.Second

	// maxIdentifyConcurrency bounds simultaneous miIO.info calls at start.
	maxIdentifyConcurrency = 8

	// pruneInterval is how often state history and the audit log are trimmed.
	pruneInterval = 24 * time.Hour

	// storeTimeout bounds a single history or info write.
	storeTimeout = 5 * time.Second
)

// MQTTClient is the subset of the MQTT client the bridge uses.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DeviceTransport is a purifier transport that can also identify the
// device. *miio.Client satisfies it.
type DeviceTransport interface {
	purifier.Transport
	Info(ctx context.Context) (miio.DeviceInfo, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DeviceSpec describes one purifier the bridge drives.
type DeviceSpec struct {
	ID   string
	Name string
	Host string

	// Model is empty for auto-detection.
	Model string

	SettleDelay  time.Duration
	PollInterval time.Duration
	Transport    DeviceTransport
}

// Options holds configuration for creating a bridge.
type Options struct {
	MQTT    MQTTClient
	Devices []DeviceSpec
	Version string

	HealthInterval   time.Duration
	CommandTimeout   time.Duration
	QueueSize        int
	HistoryRetention time.Duration

	// History and Audit enable pruning; recording happens through
	// observers.
	History device.StateHistoryRepository
	Audit   audit.Repository

	// Info persists identities learnt from miIO.info. Optional.
	Info device.InfoRepository

	Observers []Observer
	Logger    Logger
}

// Identity is what the bridge knows about who a device is.
type Identity struct {
	DeviceID        string `json:"device_id"`
	Name            string `json:"name"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	UniqueID        string `json:"unique_id,omitempty"`
}

// DeviceStatus is a point-in-time view of one device.
type DeviceStatus struct {
	Identity
	Host      string         `json:"host"`
	Detected  bool           `json:"detected"`
	Supported bool           `json:"supported"`
	State     purifier.State `json:"state"`
}

type bridgeStats struct {
	commands       atomic.Uint64
	commandsFailed atomic.Uint64
	polls          atomic.Uint64
	pollErrors     atomic.Uint64
}

// Bridge connects configured purifiers to MQTT. Each device gets its own
// worker goroutine; commands, polls and requests for a device are
// serialised on its queue.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt           MQTTClient
	topics         mqtt.Topics
	health         *HealthReporter
	history        device.StateHistoryRepository
	audit          audit.Repository
	info           device.InfoRepository
	observers      []Observer
	commandTimeout time.Duration
	retention      time.Duration

	workers map[string]*deviceWorker
	order   []string

	stats bridgeStats

	started   atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}

	commandTimeout := opts.CommandTimeout
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:           opts.MQTT,
		history:        opts.History,
		audit:          opts.Audit,
		info:           opts.Info,
		observers:      opts.Observers,
		commandTimeout: commandTimeout,
		retention:      opts.HistoryRetention,
		workers:        make(map[string]*deviceWorker, len(opts.Devices)),
		done:           make(chan struct{}),
		ctx:            ctx,
		ctxCancel:      cancel,
		logger:         opts.Logger,
	}

	for _, spec := range opts.Devices {
		w, err := b.newWorker(spec, queueSize)
		if err != nil {
			cancel()
			return nil, err
		}
		b.workers[spec.ID] = w
		b.order = append(b.order, spec.ID)
	}
	sort.Strings(b.order)

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  mqtt.Protocol,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Source:    b,
		Logger:    opts.Logger,
	})

	return b, nil
}

func (b *Bridge) newWorker(spec DeviceSpec, queueSize int) (*deviceWorker, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if _, dup := b.workers[spec.ID]; dup {
		return nil, fmt.Errorf("duplicate device id %q", spec.ID)
	}
	if spec.Transport == nil {
		return nil, fmt.Errorf("device %s: transport is required", spec.ID)
	}

	driver, err := purifier.NewDriver(purifier.DeviceHandle{
		Host:        spec.Host,
		Transport:   spec.Transport,
		SettleDelay: spec.SettleDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", spec.ID, err)
	}

	name := spec.Name
	if name == "" {
		name = config.DefaultDeviceName
	}
	var adapterLogger purifier.Logger
	if b.logger != nil {
		adapterLogger = b.logger
	}
	adapter, err := purifier.NewAdapter(driver, purifier.AdapterOptions{
		Name:   name,
		Model:  spec.Model,
		Logger: adapterLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", spec.ID, err)
	}

	pollEvery := spec.PollInterval
	if pollEvery <= 0 {
		pollEvery = defaultPollInterval
	}

	return &deviceWorker{
		id:        spec.ID,
		host:      spec.Host,
		transport: spec.Transport,
		adapter:   adapter,
		queue:     make(chan job, queueSize),
		pollEvery: pollEvery,
		bridge:    b,
		model:     spec.Model,
		firmware:  purifier.FirmwareUnknown,
		detected:  spec.Model != "",
		supported: spec.Model == config.SupportedModel,
	}, nil
}

// Start identifies and polls every device once, subscribes to command and
// request topics, then starts the device workers, health reporting and
// history pruning. It blocks until initial identification finishes.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.identifyAll(ctx)

	if err := b.mqtt.Subscribe(b.topics.AllCommands(), 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.AllRequests(), 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed", "commands", b.topics.AllCommands(), "requests", b.topics.AllRequests())

	for _, id := range b.order {
		b.wg.Add(1)
		go b.workers[id].run(b.ctx)
	}
	b.started.Store(true)

	if (b.history != nil || b.audit != nil) && b.retention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	b.health.Start(ctx)

	b.logInfo("bridge started", "devices", len(b.order))
	return nil
}

// identifyAll runs identification and the first poll for every device
// concurrently.
func (b *Bridge) identifyAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxIdentifyConcurrency)

	for _, id := range b.order {
		w := b.workers[id]
		g.Go(func() error {
			identifyCtx, cancel := context.WithTimeout(gctx, b.commandTimeout)
			err := w.identify(identifyCtx)
			cancel()
			if err != nil {
				b.logWarn("device identification failed, will retry", "device_id", w.id, "error", err)
			}
			w.poll(gctx, SourceStartup)
			return nil
		})
	}
	_ = g.Wait()
}

// Stop cancels the workers and publishes a stopping health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleMQTTMessage routes command and request topics.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	category, id, ok := mqtt.ParseTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	switch category {
	case mqtt.CategoryCommand:
		b.handleCommand(id, payload)
	case mqtt.CategoryRequest:
		b.handleRequest(id, payload)
	default:
		return fmt.Errorf("unexpected topic category %q", category)
	}
	return nil
}

// handleCommand validates an MQTT command and queues it on the device.
func (b *Bridge) handleCommand(deviceID string, payload []byte) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.publishAck(NewAckError(msg, deviceID, ErrCodeInvalidPayload, err.Error()))
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Source == "" {
		msg.Source = "mqtt"
	}

	b.logDebug("received command",
		"command_id", msg.ID,
		"device_id", deviceID,
		"command", msg.Command)

	if _, err := b.Submit(deviceID, msg); err != nil {
		b.publishAck(NewAckError(msg, deviceID, SubmitErrorCode(err), err.Error()))
	}
}

// Submit parses msg and queues it for deviceID without waiting. The ack is
// published when the command finishes. It returns the command id.
func (b *Bridge) Submit(deviceID string, msg CommandMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := b.enqueue(deviceID, msg, nil)
	return msg.ID, err
}

// Execute runs msg on deviceID and waits for the result. The ack is also
// published on MQTT.
func (b *Bridge) Execute(ctx context.Context, deviceID string, msg CommandMessage) (purifier.Result, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	reply := make(chan purifier.Result, 1)
	if _, err := b.enqueue(deviceID, msg, reply); err != nil {
		return purifier.Result{}, err
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return purifier.Result{}, ctx.Err()
	}
}

func (b *Bridge) enqueue(deviceID string, msg CommandMessage, reply chan purifier.Result) (purifier.Command, error) {
	w, ok := b.workers[deviceID]
	if !ok {
		return purifier.Command{}, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	select {
	case <-b.done:
		return purifier.Command{}, ErrBridgeStopped
	default:
	}

	cmd, err := ParseCommand(msg.Command, msg.Parameters)
	if err != nil {
		return purifier.Command{}, err
	}

	select {
	case w.queue <- job{msg: msg, cmd: cmd, source: msg.Source, reply: reply}:
		return cmd, nil
	default:
		return purifier.Command{}, fmt.Errorf("%w: device %s", ErrQueueFull, deviceID)
	}
}

// handleRequest answers read_state and list_devices.
func (b *Bridge) handleRequest(requestID string, payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.publishResponse(requestID, newErrorResponse(requestID, ErrCodeInvalidPayload, err.Error()))
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestID
	}

	b.logDebug("received request", "request_id", req.RequestID, "action", req.Action)

	var resp ResponseMessage
	switch req.Action {
	case ActionReadState:
		resp = b.handleReadState(req)
	case ActionListDevices:
		resp = b.handleListDevices(req)
	default:
		resp = newErrorResponse(req.RequestID, ErrCodeUnknownCommand,
			fmt.Sprintf("unknown action: %s", req.Action))
	}
	b.publishResponse(requestID, resp)
}

func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return newErrorResponse(req.RequestID, ErrCodeInvalidParameter, "device_id is required")
	}
	if _, ok := b.workers[req.DeviceID]; !ok {
		return newErrorResponse(req.RequestID, ErrCodeUnknownDevice,
			fmt.Sprintf("device %s not configured", req.DeviceID))
	}

	if refresh, _ := req.Parameters["refresh"].(bool); refresh && b.started.Load() {
		ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
		_, err := b.Execute(ctx, req.DeviceID, CommandMessage{
			ID:      req.RequestID,
			Command: string(purifier.IntentRefresh),
			Source:  "request",
		})
		cancel()
		if err != nil {
			return newErrorResponse(req.RequestID, SubmitErrorCode(err), err.Error())
		}
	}

	status, _ := b.Device(req.DeviceID)
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      statusData(status),
	}
}

func (b *Bridge) handleListDevices(req RequestMessage) ResponseMessage {
	devices := b.Devices()
	list := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		list = append(list, statusData(d))
	}
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      map[string]any{"devices": list},
	}
}

func statusData(s DeviceStatus) map[string]any {
	return map[string]any{
		"device_id":        s.DeviceID,
		"name":             s.Name,
		"host":             s.Host,
		"model":            s.Model,
		"firmware_version": s.FirmwareVersion,
		"unique_id":        s.UniqueID,
		"supported":        s.Supported,
		"available":        s.State.Available,
		"is_on":            s.State.IsOn,
		"state":            s.State.Attributes,
	}
}

// SubmitErrorCode maps enqueue and parse errors to wire codes.
func SubmitErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeUnknownDevice
	case errors.Is(err, ErrQueueFull):
		return ErrCodeQueueFull
	case errors.Is(err, purifier.ErrUnknownIntent):
		return ErrCodeUnknownCommand
	case errors.Is(err, purifier.ErrInvalidParameter):
		return ErrCodeInvalidParameter
	case errors.Is(err, ErrInvalidPayload):
		return ErrCodeInvalidPayload
	default:
		return ErrCodeBridgeError
	}
}

// Devices returns every device ordered by id.
func (b *Bridge) Devices() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.workers[id].status())
	}
	return out
}

// Device returns one device's status.
func (b *Bridge) Device(id string) (DeviceStatus, bool) {
	w, ok := b.workers[id]
	if !ok {
		return DeviceStatus{}, false
	}
	return w.status(), true
}

// DeviceCounts implements HealthSource.
func (b *Bridge) DeviceCounts() (total, available int) {
	for _, w := range b.workers {
		total++
		if w.adapter.Available() {
			available++
		}
	}
	return total, available
}

// Statistics implements HealthSource.
func (b *Bridge) Statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsTotal:  b.stats.commands.Load(),
		CommandsFailed: b.stats.commandsFailed.Load(),
		PollsTotal:     b.stats.polls.Load(),
		PollErrors:     b.stats.pollErrors.Load(),
	}
}

// HealthStatus returns the status the health reporter would publish now.
func (b *Bridge) HealthStatus() (HealthStatus, string) {
	return b.health.assess()
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ack.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) publishResponse(requestID string, resp ResponseMessage) {
	payload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Response(requestID), payload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// publishState sends the retained state and notifies observers.
func (b *Bridge) publishState(deviceID, name string, state purifier.State, source string) {
	msg := NewStateMessage(deviceID, name, state, source)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(deviceID), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}

	var model string
	if w, ok := b.workers[deviceID]; ok {
		w.mu.RLock()
		model = w.model
		w.mu.RUnlock()
	}
	b.notifyState(StateUpdate{
		DeviceID:  deviceID,
		Name:      name,
		Model:     model,
		State:     state,
		Source:    source,
		Timestamp: msg.Timestamp,
	})
}

func (b *Bridge) saveInfo(ctx context.Context, id Identity) {
	if b.info == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	err := b.info.SaveInfo(ctx, device.Info{
		DeviceID:        id.DeviceID,
		Name:            id.Name,
		Model:           id.Model,
		FirmwareVersion: id.FirmwareVersion,
		UniqueID:        id.UniqueID,
	})
	if err != nil {
		b.logError("failed to save device info", err)
	}
}

// pruneLoop trims state history and the command audit log once at start
// and then daily.
func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		b.prune()
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) prune() {
	ctx, cancel := context.WithTimeout(b.ctx, storeTimeout)
	defer cancel()

	if b.history != nil {
		deleted, err := b.history.PruneHistory(ctx, b.retention)
		if err != nil {
			b.logError("failed to prune state history", err)
		} else if deleted > 0 {
			b.logInfo("pruned state history", "deleted", deleted, "retention", b.retention)
		}
	}

	if b.audit != nil {
		deleted, err := b.audit.Prune(ctx, b.retention)
		if err != nil {
			b.logError("failed to prune command audit", err)
		} else if deleted > 0 {
			b.logInfo("pruned command audit", "deleted", deleted, "retention", b.retention)
		}
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.logger; logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.logger; logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.logger; logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.logger; logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
