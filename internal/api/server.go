package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/audit"
	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
	"github.com/nerrad567/gray-logic-airdog/internal/device"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

const shutdownGrace = 10 * time.Second

// Bridge is the part of the airdog bridge the API drives.
type Bridge interface {
	Devices() []airdog.DeviceStatus
	Device(id string) (airdog.DeviceStatus, bool)
	Execute(ctx context.Context, deviceID string, msg airdog.CommandMessage) (purifier.Result, error)
	HealthStatus() (airdog.HealthStatus, string)
	Statistics() airdog.BridgeStatistics
}

// AuditLister reads the command audit log. *audit.SQLiteRepository
// satisfies it.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// DBStatser exposes connection pool stats. *database.DB satisfies it.
type DBStatser interface {
	Stats() sql.DBStats
}

// Deps is what New needs. Logger and Bridge are required.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Bridge  Bridge
	History device.StateHistoryRepository // optional
	Audit   AuditLister                   // optional
	MQTT    ConnectionChecker             // optional
	DB      DBStatser                     // optional
	Hub     *Hub                          // shared with the bridge's observers; built from WS when nil
	Metrics *Metrics                      // nil leaves /metrics unmounted
	Version string
}

// Server is the HTTP API server for the airdog bridge.
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	bridge       Bridge
	stateHistory device.StateHistoryRepository
	audit        AuditLister
	mqtt         ConnectionChecker
	db           DBStatser
	metrics      *Metrics
	hub          *Hub
	version      string
	startTime    time.Time

	http   *http.Server
	ln     net.Listener
	cancel context.CancelFunc
}

// New validates deps and builds a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Bridge == nil:
		return nil, errors.New("api: bridge is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}
	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		bridge:       deps.Bridge,
		stateHistory: deps.History,
		audit:        deps.Audit,
		mqtt:         deps.MQTT,
		db:           deps.DB,
		metrics:      deps.Metrics,
		hub:          hub,
		version:      deps.Version,
		startTime:    time.Now(),
	}, nil
}

// Start binds the listener, so a port conflict is returned here, then
// serves in the background until Close or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ln, s.cancel = ln, cancel
	s.http = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go s.hub.Run(runCtx)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the hub, which drops websocket clients, then drains in-flight
// requests for up to shutdownGrace.
func (s *Server) Close() error {
	if s.http == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has bound the listener.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health: %w", err)
	}
	if s.ln == nil {
		return errors.New("api server not started")
	}
	return nil
}
