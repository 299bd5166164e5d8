package airdog

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

func TestParseCommand(t *testing.T) {
	speed := func(v int) *int { return &v }

	tests := []struct {
		name    string
		command string
		params  map[string]any
		want    purifier.Command
		wantErr error
	}{
		{"turn on", "turn_on", nil, purifier.Command{Intent: purifier.IntentTurnOn}, nil},
		{"turn on with speed", "turn_on", map[string]any{"speed": float64(2)},
			purifier.Command{Intent: purifier.IntentTurnOn, Speed: speed(2)}, nil},
		{"legacy off", "off", nil, purifier.Command{Intent: purifier.IntentTurnOff}, nil},
		{"set speed", "set_speed", map[string]any{"speed": float64(4)},
			purifier.Command{Intent: purifier.IntentSetSpeed, Speed: speed(4)}, nil},
		{"set speed from list string", "set_speed", map[string]any{"speed": "3"},
			purifier.Command{Intent: purifier.IntentSetSpeed, Speed: speed(3)}, nil},
		{"set speed out of range passes parse", "set_speed", map[string]any{"speed": float64(7)},
			purifier.Command{Intent: purifier.IntentSetSpeed, Speed: speed(7)}, nil},
		{"set speed missing", "set_speed", nil, purifier.Command{}, purifier.ErrInvalidParameter},
		{"set speed fractional", "set_speed", map[string]any{"speed": 2.5}, purifier.Command{}, purifier.ErrInvalidParameter},
		{"set speed bool", "set_speed", map[string]any{"speed": true}, purifier.Command{}, purifier.ErrInvalidParameter},
		{"set mode sleep", "set_mode", map[string]any{"mode": "Sleep"},
			purifier.Command{Intent: purifier.IntentSetMode, Mode: purifier.ModeSleep}, nil},
		{"set mode manual clamps high", "set_mode", map[string]any{"mode": "manual", "speed": float64(9)},
			purifier.Command{Intent: purifier.IntentSetMode, Mode: purifier.ModeManual, Speed: speed(4)}, nil},
		{"set mode manual clamps low", "set_mode", map[string]any{"mode": "manual", "speed": float64(0)},
			purifier.Command{Intent: purifier.IntentSetMode, Mode: purifier.ModeManual, Speed: speed(1)}, nil},
		{"set mode unknown", "set_mode", map[string]any{"mode": "turbo"}, purifier.Command{}, purifier.ErrInvalidParameter},
		{"set mode missing", "set_mode", nil, purifier.Command{}, purifier.ErrInvalidParameter},
		{"child lock", "set_child_lock", map[string]any{"locked": true},
			purifier.Command{Intent: purifier.IntentSetChildLock, Locked: true}, nil},
		{"child lock missing", "set_child_lock", map[string]any{"locked": "yes"}, purifier.Command{}, purifier.ErrInvalidParameter},
		{"child_lock_on alias", "child_lock_on", nil, purifier.Command{Intent: purifier.IntentLock}, nil},
		{"reset_filter alias", "reset_filter", nil, purifier.Command{Intent: purifier.IntentClean}, nil},
		{"refresh", "refresh", nil, purifier.Command{Intent: purifier.IntentRefresh}, nil},
		{"unknown", "explode", nil, purifier.Command{}, purifier.ErrUnknownIntent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.command, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseCommand() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got.Intent != tt.want.Intent || got.Mode != tt.want.Mode || got.Locked != tt.want.Locked {
				t.Errorf("ParseCommand() = %+v, want %+v", got, tt.want)
			}
			switch {
			case (got.Speed == nil) != (tt.want.Speed == nil):
				t.Errorf("Speed = %v, want %v", got.Speed, tt.want.Speed)
			case got.Speed != nil && *got.Speed != *tt.want.Speed:
				t.Errorf("Speed = %d, want %d", *got.Speed, *tt.want.Speed)
			}
		})
	}
}
