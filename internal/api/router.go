package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		tagRequest,
		s.accessLog,
		s.recoverPanics,
		newCORSPolicy(s.cfg.CORS).handler,
		middleware.RequestSize(maxBodyBytes),
	)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleSystemMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleGetDeviceHistory)
				r.Get("/air-quality", s.handleGetAirQuality)
				r.Post("/commands", s.handleDeviceCommand)
			})
		})

		r.Get("/commands", s.handleListCommands)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the bridge health as the MQTT health topic would.
// Unhealthy maps to 503 so load balancers can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, reason := s.bridge.HealthStatus()

	code := http.StatusOK
	if status == airdog.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if reason != "" {
		body["reason"] = reason
	}
	respond(w, code, body)
}
