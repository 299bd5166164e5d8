package airdog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

func TestNewAckMessage(t *testing.T) {
	cmd := CommandMessage{ID: "c1", Command: "set_speed"}

	tests := []struct {
		name       string
		result     purifier.Result
		wantStatus AckStatus
		wantCode   string
	}{
		{"success", purifier.Result{Outcome: purifier.OutcomeSuccess}, AckAccepted, ""},
		{"skipped", purifier.Result{Outcome: purifier.OutcomeSkipped}, AckAccepted, ""},
		{"invalid", purifier.Result{Outcome: purifier.OutcomeInvalidParameter, Err: purifier.ErrInvalidParameter},
			AckFailed, ErrCodeInvalidParameter},
		{"rejected", purifier.Result{Outcome: purifier.OutcomeRejected, Err: purifier.ErrUnknownIntent},
			AckFailed, ErrCodeUnknownCommand},
		{"protocol", purifier.Result{Outcome: purifier.OutcomeProtocolError, Err: purifier.ErrDeviceProtocol},
			AckFailed, ErrCodeProtocolError},
		{"unreachable", purifier.Result{Outcome: purifier.OutcomeUnreachable, Err: purifier.ErrDeviceUnreachable},
			AckFailed, ErrCodeDeviceUnreachable},
		{"deadline", purifier.Result{Outcome: purifier.OutcomeUnreachable,
			Err: fmt.Errorf("%w: %w", purifier.ErrDeviceUnreachable, context.DeadlineExceeded)},
			AckTimeout, ErrCodeDeviceUnreachable},
		{"unsupported", purifier.Result{Outcome: purifier.OutcomeRejected, Err: ErrUnsupportedModel},
			AckFailed, ErrCodeUnsupportedModel},
		{"refused by device", purifier.Result{Outcome: purifier.OutcomeRejected, Err: purifier.ErrCommandRejected},
			AckFailed, ErrCodeCommandRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := NewAckMessage(cmd, "bedroom", tt.result)
			if ack.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", ack.Status, tt.wantStatus)
			}
			if ack.CommandID != "c1" || ack.DeviceID != "bedroom" || ack.Protocol != "airdog" {
				t.Errorf("ack = %+v", ack)
			}
			if tt.wantCode == "" {
				if ack.Error != nil {
					t.Errorf("Error = %+v, want nil", ack.Error)
				}
				return
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("Error = %+v, want code %s", ack.Error, tt.wantCode)
			}
		})
	}
}

func TestSubmitErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", ErrUnknownDevice), ErrCodeUnknownDevice},
		{ErrQueueFull, ErrCodeQueueFull},
		{fmt.Errorf("%w: x", purifier.ErrUnknownIntent), ErrCodeUnknownCommand},
		{fmt.Errorf("%w: x", purifier.ErrInvalidParameter), ErrCodeInvalidParameter},
		{ErrInvalidPayload, ErrCodeInvalidPayload},
		{errors.New("boom"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		if got := SubmitErrorCode(tt.err); got != tt.want {
			t.Errorf("SubmitErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
