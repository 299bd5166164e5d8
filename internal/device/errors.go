package device

import "errors"

var (
	// ErrDeviceNotFound means nothing is stored for the device id yet.
	ErrDeviceNotFound = errors.New("device: not found")

	ErrInvalidDeviceID = errors.New("device: id is required")
)
