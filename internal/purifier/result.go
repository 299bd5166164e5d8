package purifier

import "errors"

// Outcome classifies how an adapter operation ended.
type Outcome string

// Adapter outcomes.
const (
	OutcomeSuccess          Outcome = "success"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeRejected         Outcome = "rejected"
	OutcomeInvalidParameter Outcome = "invalid_parameter"
	OutcomeUnreachable      Outcome = "unreachable"
	OutcomeProtocolError    Outcome = "protocol_error"
)

// Result is returned by every adapter operation instead of an error.
type Result struct {
	Intent  Intent
	Outcome Outcome
	Err     error
}

// OK reports whether the operation completed or was deliberately skipped.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeSkipped
}

// DeviceFault reports whether the failure came from the device or transport.
func (r Result) DeviceFault() bool {
	return r.Outcome == OutcomeUnreachable || r.Outcome == OutcomeProtocolError
}

func (r Result) String() string {
	if r.Err != nil {
		return string(r.Intent) + ": " + string(r.Outcome) + ": " + r.Err.Error()
	}
	return string(r.Intent) + ": " + string(r.Outcome)
}

// outcomeFor maps a driver error to an outcome.
func outcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidParameter):
		return OutcomeInvalidParameter
	case errors.Is(err, ErrUnknownIntent), errors.Is(err, ErrCommandRejected):
		return OutcomeRejected
	case errors.Is(err, ErrDeviceProtocol):
		return OutcomeProtocolError
	default:
		return OutcomeUnreachable
	}
}
