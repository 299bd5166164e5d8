package mqtt

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("mqtt: not connected")
	ErrTimeout         = errors.New("mqtt: broker did not acknowledge in time")
	ErrInvalidTopic    = errors.New("mqtt: invalid topic")
	ErrInvalidQoS      = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
	ErrNilHandler      = errors.New("mqtt: nil handler")
)

// OpError records which broker operation failed and on which topic.
// Use errors.Is against the sentinels above or the underlying paho error.
type OpError struct {
	Op    string // connect, publish, subscribe, unsubscribe
	Topic string
	Err   error
}

func (e *OpError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mqtt %s %q: %v", e.Op, e.Topic, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Op returns the failed operation name for an *OpError, or "".
func Op(err error) string {
	var op *OpError
	if errors.As(err, &op) {
		return op.Op
	}
	return ""
}
