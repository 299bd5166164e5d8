package airdog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the slice of the MQTT client health needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthSource supplies the device figures health is derived from.
type HealthSource interface {
	DeviceCounts() (total, available int)
	Statistics() BridgeStatistics
}

// HealthReporterConfig configures a HealthReporter. Interval defaults to 30s;
// Source and Logger may be nil.
type HealthReporterConfig struct {
	BridgeID  string
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher
	Source    HealthSource
	Logger    Logger
}

// HealthReporter publishes a retained HealthMessage on the health topic,
// once on start and then every interval.
type HealthReporter struct {
	cfg     HealthReporterConfig
	topic   string
	started time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	loopDone  chan struct{}
}

func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:      cfg,
		topic:    mqtt.Topics{}.Health(),
		started:  time.Now(),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start launches the reporting loop. Later calls do nothing.
func (h *HealthReporter) Start(ctx context.Context) {
	h.startOnce.Do(func() { go h.loop(ctx) })
}

// Stop ends the loop and publishes a final "stopping" status. Safe to call
// more than once, and before Start.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		h.startOnce.Do(func() { close(h.loopDone) })
		<-h.loopDone
		h.report(HealthStopping, "bridge stopping")
	})
}

// PublishStarting announces the bridge before devices are identified.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current assessment immediately.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.assess())
}

func (h *HealthReporter) loop(ctx context.Context) {
	defer close(h.loopDone)

	tick := time.NewTicker(h.cfg.Interval)
	defer tick.Stop()

	for {
		h.report(h.assess())
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		case <-tick.C:
		}
	}
}

// assess turns broker connectivity and device reachability into a status.
func (h *HealthReporter) assess() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.Source == nil {
		return HealthHealthy, ""
	}
	return reachability(h.cfg.Source.DeviceCounts())
}

func reachability(total, available int) (HealthStatus, string) {
	switch down := total - available; {
	case total == 0 || down == 0:
		return HealthHealthy, ""
	case available == 0:
		return HealthUnhealthy, "no devices reachable"
	default:
		return HealthDegraded, fmt.Sprintf("%d of %d devices unreachable", down, total)
	}
}

// report is publish with the error logged.
func (h *HealthReporter) report(status HealthStatus, reason string) {
	if err := h.publish(status, reason); err != nil && h.cfg.Logger != nil {
		h.cfg.Logger.Error("health publish failed", "status", status, "error", err)
	}
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Bridge:        h.cfg.BridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Reason:        reason,
	}
	if src := h.cfg.Source; src != nil {
		msg.DevicesManaged, msg.DevicesAvailable = src.DeviceCounts()
		stats := src.Statistics()
		msg.Statistics = &stats
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding health: %w", err)
	}
	return h.cfg.Publisher.Publish(h.topic, payload, 1, true)
}
