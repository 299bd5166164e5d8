// Airdog Bridge
//
// This is the service entry point. It drives one or more
// airdog.airpurifier.x5 purifiers over the local miio protocol and exposes
// them on MQTT, a REST/WebSocket API and Prometheus.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-airdog/migrations"

	"github.com/nerrad567/gray-logic-airdog/internal/api"
	"github.com/nerrad567/gray-logic-airdog/internal/audit"
	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
	"github.com/nerrad567/gray-logic-airdog/internal/device"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-airdog/internal/miio"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting airdog bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	infoRepo := device.NewSQLiteInfoRepository(db.DB)

	mqttClient, err := mqtt.Connect(cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	observers := []airdog.Observer{
		airdog.NewHistoryRecorder(historyRepo, log),
		airdog.NewAuditRecorder(auditRepo, log),
	}

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, airdog.NewTelemetryRecorder(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// The hub and metrics observe the bridge, so they exist before it.
	var (
		hub     *api.Hub
		metrics *api.Metrics
	)
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		metrics = api.NewMetrics()
		observers = append(observers, hub, metrics)
	}

	specs, closeTransports, err := dialDevices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeTransports()

	bridge, err := airdog.New(airdog.Options{
		MQTT:             mqttClient,
		Devices:          specs,
		Version:          version,
		HealthInterval:   time.Duration(cfg.Bridge.HealthInterval) * time.Second,
		CommandTimeout:   time.Duration(cfg.Bridge.CommandTimeout) * time.Second,
		QueueSize:        cfg.Bridge.QueueSize,
		HistoryRetention: time.Duration(cfg.Bridge.HistoryRetention) * time.Hour,
		History:          historyRepo,
		Audit:            auditRepo,
		Info:             infoRepo,
		Observers:        observers,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("creating airdog bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting airdog bridge: %w", err)
	}
	defer func() {
		log.Info("stopping airdog bridge")
		bridge.Stop()
	}()
	log.Info("airdog bridge started", "devices", len(specs))

	checks := []healthCheck{
		{"database", db.HealthCheck},
		{"mqtt", mqttClient.HealthCheck},
	}
	if influxClient != nil {
		checks = append(checks, healthCheck{"influxdb", influxClient.HealthCheck})
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Bridge:  bridge,
			History: historyRepo,
			Audit:   auditRepo,
			MQTT:    mqttClient,
			DB:      db,
			Hub:     hub,
			Metrics: metrics,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		checks = append(checks, healthCheck{"api", server.HealthCheck})
	} else {
		log.Info("API disabled")
	}

	if err := runHealthChecks(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed", "checks", len(checks))

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, bridge, transports, InfluxDB,
	// MQTT, database.
	return nil
}

// dialDevices opens one miio transport per configured purifier. The
// returned func closes every transport that was opened.
func dialDevices(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]airdog.DeviceSpec, func(), error) {
	specs := make([]airdog.DeviceSpec, 0, len(cfg.Devices))
	clients := make([]*miio.Client, 0, len(cfg.Devices))
	closeAll := func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				log.Warn("error closing miio transport", "error", err)
			}
		}
	}

	for _, d := range cfg.Devices {
		client, err := miio.Dial(ctx, miio.Config{
			Host:    d.Host,
			Token:   d.Token,
			Timeout: d.RoundTripTimeout(),
			Logger:  log.With("device_id", d.ID),
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("dialing device %s: %w", d.ID, err)
		}
		clients = append(clients, client)

		specs = append(specs, airdog.DeviceSpec{
			ID:           d.ID,
			Name:         d.Name,
			Host:         d.Host,
			Model:        d.Model,
			SettleDelay:  d.SettleDelay(),
			PollInterval: d.PollPeriod(),
			Transport:    client,
		})
		log.Info("device configured", "device_id", d.ID, "host", d.Host, "model", d.Model)
	}

	return specs, closeAll, nil
}

// getConfigPath returns the configuration file path.
// Uses AIRDOG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AIRDOG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck is one named startup check.
type healthCheck struct {
	name  string
	check func(context.Context) error
}

// runHealthChecks stops at the first failing check.
func runHealthChecks(ctx context.Context, checks []healthCheck) error {
	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
