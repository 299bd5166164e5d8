package purifier

import (
	"context"
	"fmt"
	"strings"
)

// Intent names an adapter operation.
type Intent string

// Intents accepted by Adapter.Dispatch.
const (
	IntentTurnOn       Intent = "turn_on"
	IntentTurnOff      Intent = "turn_off"
	IntentSetSpeed     Intent = "set_speed"
	IntentSetMode      Intent = "set_mode"
	IntentSetChildLock Intent = "set_child_lock"
	IntentLock         Intent = "lock"
	IntentUnlock       Intent = "unlock"
	IntentClean        Intent = "clean"
	IntentRefresh      Intent = "refresh"
)

// intentAliases accepts the service names older integrations used.
var intentAliases = map[string]Intent{
	"child_lock_on":  IntentLock,
	"child_lock_off": IntentUnlock,
	"reset_filter":   IntentClean,
	"reset":          IntentClean,
	"on":             IntentTurnOn,
	"off":            IntentTurnOff,
}

// ParseIntent resolves a command name, including legacy aliases.
func ParseIntent(name string) (Intent, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := intentAliases[key]; ok {
		return alias, nil
	}
	intent := Intent(key)
	if _, ok := dispatchTable[intent]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, name)
	}
	return intent, nil
}

// Command is one intent with its arguments.
type Command struct {
	Intent Intent
	Speed  *int
	Mode   OperationMode
	Locked bool
}

// Intents returns every intent Dispatch understands.
func Intents() []Intent {
	return []Intent{
		IntentTurnOn, IntentTurnOff, IntentSetSpeed, IntentSetMode,
		IntentSetChildLock, IntentLock, IntentUnlock, IntentClean, IntentRefresh,
	}
}

type handler func(ctx context.Context, a *Adapter, cmd Command) Result

// dispatchTable maps each intent to its typed adapter call.
var dispatchTable = map[Intent]handler{
	IntentTurnOn: func(ctx context.Context, a *Adapter, cmd Command) Result {
		return a.TurnOn(ctx, cmd.Speed)
	},
	IntentTurnOff: func(ctx context.Context, a *Adapter, _ Command) Result {
		return a.TurnOff(ctx)
	},
	IntentSetSpeed: func(ctx context.Context, a *Adapter, cmd Command) Result {
		if cmd.Speed == nil {
			return Result{Intent: IntentSetSpeed, Outcome: OutcomeInvalidParameter,
				Err: fmt.Errorf("%w: speed is required", ErrInvalidParameter)}
		}
		return a.SetSpeed(ctx, *cmd.Speed)
	},
	IntentSetMode: func(ctx context.Context, a *Adapter, cmd Command) Result {
		speed := 1
		if cmd.Speed != nil {
			speed = *cmd.Speed
		}
		return a.SetMode(ctx, cmd.Mode, speed)
	},
	IntentSetChildLock: func(ctx context.Context, a *Adapter, cmd Command) Result {
		return a.SetChildLock(ctx, cmd.Locked)
	},
	IntentLock: func(ctx context.Context, a *Adapter, _ Command) Result {
		return a.Lock(ctx)
	},
	IntentUnlock: func(ctx context.Context, a *Adapter, _ Command) Result {
		return a.Unlock(ctx)
	},
	IntentClean: func(ctx context.Context, a *Adapter, _ Command) Result {
		return a.Clean(ctx)
	},
	IntentRefresh: func(ctx context.Context, a *Adapter, _ Command) Result {
		return a.Refresh(ctx)
	},
}

// Dispatch routes cmd to the adapter operation for its intent.
func (a *Adapter) Dispatch(ctx context.Context, cmd Command) Result {
	h, ok := dispatchTable[cmd.Intent]
	if !ok {
		return Result{
			Intent:  cmd.Intent,
			Outcome: OutcomeRejected,
			Err:     fmt.Errorf("%w: %q", ErrUnknownIntent, cmd.Intent),
		}
	}
	return h(ctx, a, cmd)
}
