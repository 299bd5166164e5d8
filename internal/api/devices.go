package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-airdog/internal/bridges/airdog"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// commandSource tags commands that arrive over HTTP.
const commandSource = "api"

// maxCommandWait bounds how long a command request waits on the device
// worker when the request context has no deadline of its own.
const maxCommandWait = 30 * time.Second

// DeviceView is the JSON shape of one purifier.
type DeviceView struct {
	DeviceID        string         `json:"device_id"`
	Name            string         `json:"name"`
	Host            string         `json:"host"`
	Model           string         `json:"model"`
	FirmwareVersion string         `json:"firmware_version"`
	UniqueID        string         `json:"unique_id,omitempty"`
	Detected        bool           `json:"detected"`
	Supported       bool           `json:"supported"`
	Available       bool           `json:"available"`
	IsOn            *bool          `json:"is_on"`
	State           map[string]any `json:"state"`
}

func viewOf(s airdog.DeviceStatus) DeviceView {
	return DeviceView{
		DeviceID:        s.DeviceID,
		Name:            s.Name,
		Host:            s.Host,
		Model:           s.Model,
		FirmwareVersion: s.FirmwareVersion,
		UniqueID:        s.UniqueID,
		Detected:        s.Detected,
		Supported:       s.Supported,
		Available:       s.State.Available,
		IsOn:            s.State.IsOn,
		State:           s.State.Attributes,
	}
}

// CommandRequest is the body of POST /devices/{id}/commands.
type CommandRequest struct {
	ID         string         `json:"id,omitempty"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CommandResponse carries the ack for the command and the device afterwards.
type CommandResponse struct {
	airdog.AckMessage
	Device *DeviceView `json:"device,omitempty"`
}

// handleListDevices returns every configured purifier.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	statuses := s.bridge.Devices()
	devices := make([]DeviceView, 0, len(statuses))
	for _, st := range statuses {
		devices = append(devices, viewOf(st))
	}
	respond(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	st, ok := s.bridge.Device(chi.URLParam(r, "id"))
	if !ok {
		fail(w, r, http.StatusNotFound, "device not found")
		return
	}
	respond(w, http.StatusOK, viewOf(st))
}

// handleDeviceCommand runs one command through the bridge and waits for it.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if _, ok := s.bridge.Device(deviceID); !ok {
		fail(w, r, http.StatusNotFound, "device not found")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		fail(w, r, http.StatusBadRequest, "command is required")
		return
	}

	msg := airdog.CommandMessage{
		ID:         req.ID,
		Timestamp:  time.Now().UTC(),
		DeviceID:   deviceID,
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     commandSource,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxCommandWait)
		defer cancel()
	}

	result, err := s.bridge.Execute(ctx, deviceID, msg)
	if err != nil {
		s.writeSubmitError(w, msg, deviceID, err)
		return
	}

	resp := CommandResponse{AckMessage: airdog.NewAckMessage(msg, deviceID, result)}
	if st, ok := s.bridge.Device(deviceID); ok {
		view := viewOf(st)
		resp.Device = &view
	}
	respond(w, statusForOutcome(result.Outcome), resp)
}

// writeSubmitError answers a command that never reached the device.
func (s *Server) writeSubmitError(w http.ResponseWriter, msg airdog.CommandMessage, deviceID string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, purifier.ErrInvalidParameter), errors.Is(err, purifier.ErrUnknownIntent):
		code = http.StatusBadRequest
	case errors.Is(err, airdog.ErrUnknownDevice):
		code = http.StatusNotFound
	case errors.Is(err, airdog.ErrQueueFull), errors.Is(err, airdog.ErrBridgeStopped):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusGatewayTimeout
		ack := airdog.NewAckError(msg, deviceID, airdog.ErrCodeDeviceUnreachable, err.Error())
		ack.Status = airdog.AckTimeout
		respond(w, code, CommandResponse{AckMessage: ack})
		return
	}

	s.logger.Debug("api command rejected", "device_id", deviceID, "command", msg.Command, "error", err)
	respond(w, code, CommandResponse{
		AckMessage: airdog.NewAckError(msg, deviceID, airdog.SubmitErrorCode(err), err.Error()),
	})
}

// statusForOutcome maps an adapter outcome to an HTTP status.
func statusForOutcome(o purifier.Outcome) int {
	switch o {
	case purifier.OutcomeSuccess, purifier.OutcomeSkipped:
		return http.StatusOK
	case purifier.OutcomeInvalidParameter:
		return http.StatusBadRequest
	case purifier.OutcomeRejected:
		return http.StatusConflict
	case purifier.OutcomeUnreachable:
		return http.StatusBadGateway
	case purifier.OutcomeProtocolError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
