package purifier

import (
	"context"
	"fmt"
	"time"
)

// Device command names.
const (
	methodSetPower = "set_power"
	methodSetWind  = "set_wind"
	methodSetLock  = "set_lock"
	methodSetClean = "set_clean"
)

// Transport carries commands to one device. Implementations must be safe
// for sequential use; the driver never issues concurrent calls.
type Transport interface {
	// Send issues a command and returns the device's result array.
	Send(ctx context.Context, method string, params []int) ([]any, error)

	// GetProperties reads named properties, at most maxProperties per
	// request, returning one value per name (nil when not reported).
	GetProperties(ctx context.Context, names []string, maxProperties int) ([]any, error)
}

// DeviceHandle identifies one physical purifier.
type DeviceHandle struct {
	// Host is informational; the transport already knows where to send.
	Host      string
	Transport Transport

	// SettleDelay is waited after every mutating command.
	SettleDelay time.Duration
}

// Driver translates purifier intents into device commands and decodes
// status replies. It keeps no state between calls.
type Driver struct {
	handle DeviceHandle
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a driver for the given device.
func NewDriver(handle DeviceHandle) (*Driver, error) {
	if handle.Transport == nil {
		return nil, fmt.Errorf("purifier: transport is required")
	}
	if handle.SettleDelay < 0 {
		return nil, fmt.Errorf("purifier: settle delay must not be negative")
	}
	return &Driver{handle: handle, sleep: sleepContext}, nil
}

// Host returns the device host the driver was created for.
func (d *Driver) Host() string { return d.handle.Host }

// Status reads power, mode, speed, lock, pm and clean in one request.
func (d *Driver) Status(ctx context.Context) (StatusSnapshot, error) {
	values, err := d.handle.Transport.GetProperties(ctx, statusProperties, maxStatusProperties)
	if err != nil {
		return StatusSnapshot{}, classify("get_prop", err)
	}
	if len(values) != len(statusProperties) {
		return StatusSnapshot{}, fmt.Errorf("%w: get_prop returned %d values for %d properties",
			ErrDeviceProtocol, len(values), len(statusProperties))
	}

	reply := make(map[string]any, len(values))
	for i, name := range statusProperties {
		if values[i] != nil {
			reply[name] = values[i]
		}
	}
	return DecodeStatus(reply), nil
}

// PowerOn switches the device on.
func (d *Driver) PowerOn(ctx context.Context) error {
	return d.command(ctx, methodSetPower, 1)
}

// PowerOff switches the device off. Repeated calls send repeated commands.
func (d *Driver) PowerOff(ctx context.Context) error {
	return d.command(ctx, methodSetPower, 0)
}

// SetMode selects auto, sleep or manual. speed is used only in manual mode
// and must be within [MinSpeed, MaxSpeed].
func (d *Driver) SetMode(ctx context.Context, mode OperationMode, speed int) error {
	switch mode {
	case ModeAuto:
		return d.command(ctx, methodSetWind, windModeAuto, windSpeedFixed)
	case ModeSleep:
		return d.command(ctx, methodSetWind, windModeSleep, windSpeedFixed)
	case ModeManual:
		return d.SetSpeed(ctx, speed)
	default:
		return fmt.Errorf("%w: mode %s", ErrInvalidParameter, mode)
	}
}

// SetSpeed sets a manual fan speed, the same wire command as manual mode.
func (d *Driver) SetSpeed(ctx context.Context, speed int) error {
	if err := validateSpeed(speed); err != nil {
		return err
	}
	return d.command(ctx, methodSetWind, windModeManual, speed)
}

// SetChildLock locks or unlocks the control panel.
func (d *Driver) SetChildLock(ctx context.Context, locked bool) error {
	if locked {
		return d.command(ctx, methodSetLock, 1)
	}
	return d.command(ctx, methodSetLock, 0)
}

// Clean resets the filter-clean indicator.
func (d *Driver) Clean(ctx context.Context) error {
	return d.command(ctx, methodSetClean)
}

// command sends one mutating command, checks the ["ok"] reply and then
// waits out the settle delay.
func (d *Driver) command(ctx context.Context, method string, params ...int) error {
	if params == nil {
		params = []int{}
	}

	result, err := d.handle.Transport.Send(ctx, method, params)
	if err != nil {
		return classify(method, err)
	}
	if !isOK(result) {
		return fmt.Errorf("%w: %s replied %v", ErrCommandRejected, method, result)
	}

	// The device has accepted the command; cancellation only cuts the wait short.
	_ = d.sleep(ctx, d.handle.SettleDelay) //nolint:errcheck // only ctx.Err()
	return nil
}

func isOK(result []any) bool {
	if len(result) != 1 {
		return false
	}
	s, ok := result[0].(string)
	return ok && s == "ok"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
