package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// problem is the body of every error response that is not a command ack.
// Code is the snake_case status text, e.g. "service_unavailable".
type problem struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // client may be gone
}

func fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	respond(w, status, problem{
		Status:    status,
		Code:      strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"),
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
