package airdog

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// MQTT message types exchanged between Gray Logic and the airdog bridge.

// CommandMessage asks the bridge to run one purifier intent.
// Topic: graylogic/command/airdog/{device_id}
type CommandMessage struct {
	// ID correlates the command with its ack. Generated when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is informational; the topic decides the target.
	DeviceID string `json:"device_id,omitempty"`

	// Command is an intent name (turn_on, set_speed, ...) or a legacy
	// service alias (child_lock_on, reset_filter, ...).
	Command string `json:"command"`

	// Parameters carries speed, mode or locked as the intent requires.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated (api, automation, voice).
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted means the device accepted the command, or a refresh was
	// deliberately skipped.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or the device failed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the command ran out of time before the device answered.
	AckTimeout AckStatus = "timeout"
)

// AckMessage reports how a command ended.
// Topic: graylogic/ack/airdog/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`

	// Outcome is the adapter outcome (success, invalid_parameter, ...).
	Outcome string `json:"outcome,omitempty"`

	Protocol string    `json:"protocol"`
	Error    *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeUnknownCommand    = "UNKNOWN_COMMAND"
	ErrCodeInvalidPayload    = "INVALID_PAYLOAD"
	ErrCodeQueueFull         = "QUEUE_FULL"
	ErrCodeUnsupportedModel  = "UNSUPPORTED_MODEL"
	ErrCodeCommandRejected   = "COMMAND_REJECTED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is the retained snapshot of one purifier.
// Topic: graylogic/state/airdog/{device_id}
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Available bool      `json:"available"`

	// IsOn is null until the power state has been read once.
	IsOn  *bool          `json:"is_on"`
	State map[string]any `json:"state"`

	// Source is poll, command or startup.
	Source   string `json:"source"`
	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"

	// HealthOffline only ever arrives through the broker's last will.
	HealthOffline HealthStatus = "offline"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/airdog (QoS 1, retained)
type HealthMessage struct {
	Bridge           string            `json:"bridge"`
	Timestamp        time.Time         `json:"timestamp"`
	Status           HealthStatus      `json:"status"`
	Version          string            `json:"version"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	DevicesManaged   int               `json:"devices_managed"`
	DevicesAvailable int               `json:"devices_available"`
	Statistics       *BridgeStatistics `json:"statistics,omitempty"`
	Reason           string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsTotal  uint64 `json:"commands_total"`
	CommandsFailed uint64 `json:"commands_failed"`
	PollsTotal     uint64 `json:"polls_total"`
	PollErrors     uint64 `json:"poll_errors"`
}

// Request actions.
const (
	ActionReadState   = "read_state"
	ActionListDevices = "list_devices"
)

// RequestMessage asks the bridge for information.
// Topic: graylogic/request/airdog/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is read_state or list_devices.
	Action   string `json:"action"`
	DeviceID string `json:"device_id,omitempty"`

	// Parameters: {"refresh": true} makes read_state poll the device first.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/airdog/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage builds the ack for a finished command.
func NewAckMessage(cmd CommandMessage, deviceID string, result purifier.Result) AckMessage {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Command:   cmd.Command,
		Status:    AckAccepted,
		Outcome:   string(result.Outcome),
		Protocol:  mqtt.Protocol,
	}
	if result.OK() {
		return ack
	}

	ack.Status = AckFailed
	if errors.Is(result.Err, context.DeadlineExceeded) {
		ack.Status = AckTimeout
	}
	message := string(result.Outcome)
	if result.Err != nil {
		message = result.Err.Error()
	}
	ack.Error = &AckError{Code: errorCodeFor(result), Message: message}
	return ack
}

// NewAckError builds a failed ack for a command that never reached a device.
func NewAckError(cmd CommandMessage, deviceID, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Command:   cmd.Command,
		Status:    AckFailed,
		Protocol:  mqtt.Protocol,
		Error:     &AckError{Code: code, Message: message},
	}
}

// errorCodeFor maps an adapter outcome to a wire error code.
func errorCodeFor(result purifier.Result) string {
	switch {
	case errors.Is(result.Err, ErrUnsupportedModel):
		return ErrCodeUnsupportedModel
	case errors.Is(result.Err, ErrModelUnknown):
		return ErrCodeDeviceUnreachable
	case errors.Is(result.Err, purifier.ErrCommandRejected):
		return ErrCodeCommandRejected
	}

	switch result.Outcome {
	case purifier.OutcomeInvalidParameter:
		return ErrCodeInvalidParameter
	case purifier.OutcomeRejected:
		return ErrCodeUnknownCommand
	case purifier.OutcomeProtocolError:
		return ErrCodeProtocolError
	case purifier.OutcomeUnreachable:
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// NewStateMessage builds the retained state message for a device.
func NewStateMessage(deviceID, name string, state purifier.State, source string) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Name:      name,
		Timestamp: time.Now().UTC(),
		Available: state.Available,
		IsOn:      state.IsOn,
		State:     state.Attributes,
		Source:    source,
		Protocol:  mqtt.Protocol,
	}
}

func newErrorResponse(requestID, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error:     &ResponseError{Code: code, Message: message},
	}
}
