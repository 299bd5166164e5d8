package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// Metrics exports purifier state as Prometheus series. It is registered as
// a bridge observer so every published state updates the gauges.
type Metrics struct {
	registry *prometheus.Registry

	aqi       *prometheus.GaugeVec
	fanSpeed  *prometheus.GaugeVec
	powerOn   *prometheus.GaugeVec
	available *prometheus.GaugeVec
	childLock *prometheus.GaugeVec
	info      *prometheus.GaugeVec
	lastSeen  *prometheus.GaugeVec

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

// NewMetrics builds the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	labels := []string{"device_id"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		aqi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_aqi",
			Help: "Air quality index reported by the purifier",
		}, labels),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_fan_speed",
			Help: "Manual fan speed level (1-4)",
		}, labels),
		powerOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_power_on",
			Help: "1 if the purifier is on",
		}, labels),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_available",
			Help: "1 if the last device exchange succeeded",
		}, labels),
		childLock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_child_lock",
			Help: "1 if the control panel is locked",
		}, labels),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_device_info",
			Help: "Static device information (always 1)",
		}, []string{"device_id", "name", "model", "mode"}),
		lastSeen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airdog_last_state_timestamp_seconds",
			Help: "Time of the last published state (epoch seconds)",
		}, labels),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdog_commands_total",
			Help: "Commands executed, by outcome",
		}, []string{"device_id", "command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airdog_command_duration_seconds",
			Help:    "Command latency including the settle delay",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, labels),
	}

	m.registry.MustRegister(
		m.aqi, m.fanSpeed, m.powerOn, m.available, m.childLock, m.info, m.lastSeen,
		m.commands, m.commandDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry so callers can add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnState implements airdog.Observer.
func (m *Metrics) OnState(u airdog.StateUpdate) {
	id := u.DeviceID
	m.available.WithLabelValues(id).Set(boolGauge(u.State.Available))
	m.lastSeen.WithLabelValues(id).Set(float64(u.Timestamp.Unix()))

	if u.State.IsOn != nil {
		m.powerOn.WithLabelValues(id).Set(boolGauge(*u.State.IsOn))
	}

	attrs := u.State.Attributes
	if v, ok := attrs[purifier.AttrAQI].(int); ok {
		m.aqi.WithLabelValues(id).Set(float64(v))
	}
	// Speed is nil outside manual mode; drop the series rather than keep a
	// stale level.
	if v, ok := attrs[purifier.AttrSpeed].(int); ok {
		m.fanSpeed.WithLabelValues(id).Set(float64(v))
	} else {
		m.fanSpeed.DeleteLabelValues(id)
	}
	if v, ok := attrs[purifier.AttrChildLock].(bool); ok {
		m.childLock.WithLabelValues(id).Set(boolGauge(v))
	}

	mode, _ := attrs[purifier.AttrMode].(string)
	m.info.DeletePartialMatch(prometheus.Labels{"device_id": id})
	m.info.WithLabelValues(id, u.Name, u.Model, mode).Set(1)
}

// OnCommand implements airdog.Observer.
func (m *Metrics) OnCommand(o airdog.CommandOutcome) {
	m.commands.WithLabelValues(o.DeviceID, o.Command, string(o.Result.Outcome)).Inc()
	m.commandDuration.WithLabelValues(o.DeviceID).Observe(o.Elapsed.Seconds())
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// SystemMetrics represents the JSON system metrics response.
type SystemMetrics struct {
	Timestamp     string                  `json:"timestamp"`
	Version       string                  `json:"version"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Runtime       RuntimeMetrics          `json:"runtime"`
	WebSocket     WSMetrics               `json:"websocket"`
	MQTT          MQTTMetrics             `json:"mqtt"`
	Bridge        airdog.BridgeStatistics `json:"bridge"`
	Devices       DeviceMetrics           `json:"devices"`
	Database      *DatabaseMetrics        `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics counts purifiers by availability.
type DeviceMetrics struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Unsupported int `json:"unsupported"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemMetrics returns a JSON summary for dashboards that do not
// scrape Prometheus.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Bridge: s.bridge.Statistics(),
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	for _, d := range s.bridge.Devices() {
		metrics.Devices.Total++
		if d.State.Available {
			metrics.Devices.Available++
		}
		if d.Detected && !d.Supported {
			metrics.Devices.Unsupported++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	respond(w, http.StatusOK, metrics)
}
