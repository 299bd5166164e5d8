package miio

import (
	"errors"
	"fmt"
)

// Domain-specific errors for the miio transport.
var (
	// ErrTimeout indicates the device did not answer within the round-trip timeout.
	ErrTimeout = errors.New("miio: timeout waiting for reply")

	// ErrChecksum indicates a reply whose MD5 checksum did not verify.
	ErrChecksum = errors.New("miio: checksum mismatch")

	// ErrMalformedPacket indicates a packet with a bad magic, length or payload.
	ErrMalformedPacket = errors.New("miio: malformed packet")

	// ErrInvalidToken indicates a token that is not 32 hex characters.
	ErrInvalidToken = errors.New("miio: invalid token")

	// ErrClosed indicates the client was closed.
	ErrClosed = errors.New("miio: client closed")
)

// DeviceError is an error object returned by the device in place of a result.
type DeviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("miio: device error %d: %s", e.Code, e.Message)
}

// ProtocolError marks the device as reachable but unwilling.
func (e *DeviceError) ProtocolError() bool { return true }

// codeDuplicateID is returned when the device has already seen the request id.
const codeDuplicateID = -9999

// ReplyError wraps a reply that arrived but could not be decoded.
type ReplyError struct {
	Err error
}

func (e *ReplyError) Error() string { return "miio: bad reply: " + e.Err.Error() }

func (e *ReplyError) Unwrap() error { return e.Err }

// ProtocolError marks the device as reachable but the reply as unusable.
func (e *ReplyError) ProtocolError() bool { return true }
