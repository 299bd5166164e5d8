package airdog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// Parameter keys accepted in CommandMessage.Parameters.
const (
	ParamSpeed  = "speed"
	ParamMode   = "mode"
	ParamLocked = "locked"
)

// Speed range offered to users by set_mode; out-of-range values are clamped
// rather than rejected.
const (
	serviceMinSpeed = 1
	serviceMaxSpeed = purifier.MaxSpeed
)

// ParseCommand turns a command name and its JSON parameters into a typed
// purifier command. Errors wrap purifier.ErrUnknownIntent or
// purifier.ErrInvalidParameter.
func ParseCommand(name string, params map[string]any) (purifier.Command, error) {
	intent, err := purifier.ParseIntent(name)
	if err != nil {
		return purifier.Command{}, err
	}
	cmd := purifier.Command{Intent: intent}

	switch intent {
	case purifier.IntentTurnOn:
		if cmd.Speed, err = optionalInt(params, ParamSpeed); err != nil {
			return purifier.Command{}, err
		}

	case purifier.IntentSetSpeed:
		speed, err := optionalInt(params, ParamSpeed)
		if err != nil {
			return purifier.Command{}, err
		}
		if speed == nil {
			return purifier.Command{}, fmt.Errorf("%w: %s requires %q", purifier.ErrInvalidParameter, intent, ParamSpeed)
		}
		cmd.Speed = speed

	case purifier.IntentSetMode:
		raw, ok := params[ParamMode].(string)
		if !ok {
			return purifier.Command{}, fmt.Errorf("%w: %s requires string %q", purifier.ErrInvalidParameter, intent, ParamMode)
		}
		if cmd.Mode, err = purifier.ParseOperationMode(strings.ToLower(strings.TrimSpace(raw))); err != nil {
			return purifier.Command{}, err
		}
		speed, err := optionalInt(params, ParamSpeed)
		if err != nil {
			return purifier.Command{}, err
		}
		if speed != nil {
			clamped := min(max(*speed, serviceMinSpeed), serviceMaxSpeed)
			cmd.Speed = &clamped
		}

	case purifier.IntentSetChildLock:
		locked, ok := params[ParamLocked].(bool)
		if !ok {
			return purifier.Command{}, fmt.Errorf("%w: %s requires boolean %q", purifier.ErrInvalidParameter, intent, ParamLocked)
		}
		cmd.Locked = locked
	}

	return cmd, nil
}

// optionalInt reads an integer parameter. JSON numbers arrive as float64;
// speed-list entries arrive as strings like "3".
func optionalInt(params map[string]any, key string) (*int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var v int
	switch n := raw.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, fmt.Errorf("%w: %q must be an integer, got %v", purifier.ErrInvalidParameter, key, n)
		}
		v = int(n)
	case int:
		v = n
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("%w: %q must be an integer, got %q", purifier.ErrInvalidParameter, key, n)
		}
		v = parsed
	default:
		return nil, fmt.Errorf("%w: %q must be an integer, got %T", purifier.ErrInvalidParameter, key, raw)
	}
	return &v, nil
}
