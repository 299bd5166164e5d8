package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-airdog/internal/audit"
)

// handleListCommands returns the command audit log, newest first.
//
// Query parameters:
//   - device_id, outcome, source: exact-match filters
//   - limit: page size (1..200, default 50)
//   - offset: entries to skip
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		fail(w, r, http.StatusServiceUnavailable, "command audit unavailable")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: q.Get("device_id"),
		Outcome:  q.Get("outcome"),
		Source:   q.Get("source"),
	}

	p, err := parsePage(q)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit, filter.Offset = p.Limit, p.Offset

	if filter.DeviceID != "" {
		if _, ok := s.bridge.Device(filter.DeviceID); !ok {
			fail(w, r, http.StatusNotFound, "device not found")
			return
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Warn("listing command audit failed", "error", err)
		fail(w, r, http.StatusInternalServerError, "failed to load command audit")
		return
	}

	respond(w, http.StatusOK, result)
}
