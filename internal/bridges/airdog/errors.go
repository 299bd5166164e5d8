package airdog

import "errors"

// Domain errors for the airdog bridge package.
var (
	// ErrUnknownDevice is returned when a command names a device that is
	// not configured.
	ErrUnknownDevice = errors.New("airdog: unknown device")

	// ErrQueueFull is returned when a device's command queue has no room.
	ErrQueueFull = errors.New("airdog: command queue full")

	// ErrBridgeStopped is returned for work submitted after Stop.
	ErrBridgeStopped = errors.New("airdog: bridge stopped")

	// ErrInvalidPayload is returned when an MQTT message is not valid JSON
	// or lacks required fields.
	ErrInvalidPayload = errors.New("airdog: invalid payload")

	// ErrUnsupportedModel is returned for devices whose model the driver
	// cannot handle.
	ErrUnsupportedModel = errors.New("airdog: unsupported model")

	// ErrModelUnknown is returned while auto-detection has not yet reached
	// the device.
	ErrModelUnknown = errors.New("airdog: model not yet detected")
)
