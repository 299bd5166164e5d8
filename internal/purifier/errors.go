package purifier

import (
	"errors"
	"fmt"
)

// Domain-specific errors for the purifier driver and adapter.
var (
	// ErrInvalidParameter is returned before any transport call when a speed
	// is out of range or a mode is not recognised.
	ErrInvalidParameter = errors.New("purifier: invalid parameter")

	// ErrDeviceUnreachable is returned when the transport could not complete
	// a round trip with the device.
	ErrDeviceUnreachable = errors.New("purifier: device unreachable")

	// ErrDeviceProtocol is returned when the device answered with something
	// that is not a valid reply for the request.
	ErrDeviceProtocol = errors.New("purifier: device protocol error")

	// ErrCommandRejected is returned when the device answered a command
	// with something other than ["ok"]. The device is still reachable.
	ErrCommandRejected = errors.New("purifier: command rejected by device")

	// ErrUnknownIntent is returned by Dispatch for intents outside the table.
	ErrUnknownIntent = errors.New("purifier: unknown intent")
)

// protocolError is implemented by transport errors that mean the device
// replied but the reply was unusable (error object, bad checksum, bad JSON).
type protocolError interface {
	ProtocolError() bool
}

// classify wraps a transport error with the matching purifier sentinel.
func classify(method string, err error) error {
	if errors.Is(err, ErrDeviceUnreachable) || errors.Is(err, ErrDeviceProtocol) {
		return err
	}
	var pe protocolError
	if errors.As(err, &pe) && pe.ProtocolError() {
		return fmt.Errorf("%w: %s: %w", ErrDeviceProtocol, method, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceUnreachable, method, err)
}
