package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-airdog/internal/device"
)

const (
	defaultAirQualityWindow = 24 * time.Hour
	maxAirQualityWindow     = 30 * 24 * time.Hour
)

var (
	errBadLimit  = errors.New("limit must be between 1 and 200")
	errBadOffset = errors.New("invalid offset")
	errBadWindow = errors.New("window must be a positive duration of at most 720h")
)

// page holds the limit/offset pair shared by the list endpoints.
type page struct {
	Limit  int
	Offset int
}

// parsePage reads limit and offset. An absent limit means the history
// default; offset defaults to zero.
func parsePage(q url.Values) (page, error) {
	p := page{Limit: device.DefaultHistoryLimit}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > device.MaxHistoryLimit {
			return page{}, errBadLimit
		}
		p.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page{}, errBadOffset
		}
		p.Offset = n
	}
	return p, nil
}

func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func parseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultAirQualityWindow, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 || d > maxAirQualityWindow {
		return 0, errBadWindow
	}
	return d, nil
}

// historyTarget resolves the device in the URL and checks the store is wired.
// It writes the error response itself and reports whether to continue.
func (s *Server) historyTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, ok := s.bridge.Device(id); !ok {
		fail(w, r, http.StatusNotFound, "device not found")
		return "", false
	}
	if s.stateHistory == nil {
		fail(w, r, http.StatusServiceUnavailable, "state history unavailable")
		return "", false
	}
	return id, true
}

// handleGetDeviceHistory returns state snapshots for a device, newest first.
//
// Query parameters:
//   - limit: 1..200, default 50
//   - since: RFC3339 timestamp, exclusive
//   - source: startup, poll or command
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parsePage(q)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	since, err := parseSince(q.Get("since"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "invalid since timestamp")
		return
	}

	deviceID, ok := s.historyTarget(w, r)
	if !ok {
		return
	}

	entries, err := s.stateHistory.History(r.Context(), device.HistoryQuery{
		DeviceID: deviceID,
		Since:    since,
		Source:   q.Get("source"),
		Limit:    p.Limit,
	})
	if err != nil {
		s.logger.Warn("loading device history failed", "device_id", deviceID, "error", err)
		fail(w, r, http.StatusInternalServerError, "failed to load device history")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"history":   entries,
		"count":     len(entries),
	})
}

// handleGetAirQuality summarises the AQI readings in a trailing window,
// 24h unless ?window= gives another Go duration.
func (s *Server) handleGetAirQuality(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	deviceID, ok := s.historyTarget(w, r)
	if !ok {
		return
	}

	summary, err := s.stateHistory.AirQuality(r.Context(), deviceID, time.Now().Add(-window))
	if err != nil {
		s.logger.Warn("air quality summary failed", "device_id", deviceID, "error", err)
		fail(w, r, http.StatusInternalServerError, "failed to summarise air quality")
		return
	}
	respond(w, http.StatusOK, summary)
}
