package purifier

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// Attribute names exposed by the adapter.
const (
	AttrPower           = "power"
	AttrMode            = "mode"
	AttrSpeed           = "speed"
	AttrChildLock       = "child_lock"
	AttrAQI             = "aqi"
	AttrClean           = "clean"
	AttrModel           = "model"
	AttrFirmwareVersion = "firmware_version"
	AttrModeList        = "mode_list"
	AttrSpeedList       = "speed_list"
)

// FirmwareUnknown is reported until the device info has been read.
const FirmwareUnknown = "unknown"

// Logger is the logging surface the adapter needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Name            string
	Model           string
	FirmwareVersion string
	Logger          Logger
}

// State is a consistent copy of the adapter's observable state.
type State struct {
	Available  bool
	IsOn       *bool
	Attributes map[string]any
	Revision   uint64
}

// Adapter layers availability, optimistic on/off state and poll
// suppression over a Driver.
//
// Device calls are expected to be serialised by the caller (one worker per
// device). The mutex only keeps accessors consistent with a running call.
type Adapter struct {
	driver *Driver
	name   string
	logger Logger

	mu               sync.RWMutex
	available        bool
	isOn             *bool
	attrs            map[string]any
	suppressNextPoll bool
	revision         uint64
	model            string
	firmware         string
}

// NewAdapter wraps driver. The adapter starts unavailable with unknown state.
func NewAdapter(driver *Driver, opts AdapterOptions) (*Adapter, error) {
	if driver == nil {
		return nil, fmt.Errorf("purifier: driver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	firmware := opts.FirmwareVersion
	if firmware == "" {
		firmware = FirmwareUnknown
	}
	return &Adapter{
		driver:   driver,
		name:     opts.Name,
		logger:   logger,
		attrs:    StatusSnapshot{}.Attributes(),
		model:    opts.Model,
		firmware: firmware,
	}, nil
}

// Name returns the display name.
func (a *Adapter) Name() string { return a.name }

// SetDeviceInfo records model and firmware once they are known.
func (a *Adapter) SetDeviceInfo(model, firmware string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if model != "" {
		a.model = model
	}
	if firmware != "" {
		a.firmware = firmware
	}
}

// Available reports whether the last device interaction succeeded.
func (a *Adapter) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available
}

// IsOn returns the last known power state; ok is false until known.
func (a *Adapter) IsOn() (on bool, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.isOn == nil {
		return false, false
	}
	return *a.isOn, true
}

// Attributes returns the cached device attributes plus static metadata.
func (a *Adapter) Attributes() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.attributesLocked()
}

// State returns availability, power and attributes in one consistent read.
func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var on *bool
	if a.isOn != nil {
		v := *a.isOn
		on = &v
	}
	return State{
		Available:  a.available,
		IsOn:       on,
		Attributes: a.attributesLocked(),
		Revision:   a.revision,
	}
}

func (a *Adapter) attributesLocked() map[string]any {
	out := make(map[string]any, len(a.attrs)+4)
	maps.Copy(out, a.attrs)
	out[AttrModel] = a.model
	out[AttrFirmwareVersion] = a.firmware
	out[AttrModeList] = ModeNames()
	out[AttrSpeedList] = SpeedNames()
	return out
}

// TurnOn powers the device on, or sets a manual speed when speed is given.
func (a *Adapter) TurnOn(ctx context.Context, speed *int) Result {
	if speed != nil {
		r := a.SetSpeed(ctx, *speed)
		r.Intent = IntentTurnOn
		return r
	}
	return a.tryCommand(IntentTurnOn, func() error { return a.driver.PowerOn(ctx) }, func() {
		on := true
		a.isOn = &on
		a.suppressNextPoll = true
	})
}

// TurnOff powers the device off.
func (a *Adapter) TurnOff(ctx context.Context) Result {
	return a.tryCommand(IntentTurnOff, func() error { return a.driver.PowerOff(ctx) }, func() {
		off := false
		a.isOn = &off
		a.suppressNextPoll = true
	})
}

// SetSpeed sets a manual fan speed in [MinSpeed, MaxSpeed].
func (a *Adapter) SetSpeed(ctx context.Context, speed int) Result {
	return a.tryCommand(IntentSetSpeed, func() error { return a.driver.SetSpeed(ctx, speed) }, nil)
}

// SetMode changes the operating mode; speed only matters for ModeManual.
func (a *Adapter) SetMode(ctx context.Context, mode OperationMode, speed int) Result {
	return a.tryCommand(IntentSetMode, func() error { return a.driver.SetMode(ctx, mode, speed) }, nil)
}

// SetChildLock locks or unlocks the control panel.
func (a *Adapter) SetChildLock(ctx context.Context, locked bool) Result {
	return a.tryCommand(IntentSetChildLock, func() error { return a.driver.SetChildLock(ctx, locked) }, nil)
}

// Lock enables the child lock.
func (a *Adapter) Lock(ctx context.Context) Result {
	r := a.SetChildLock(ctx, true)
	r.Intent = IntentLock
	return r
}

// Unlock disables the child lock.
func (a *Adapter) Unlock(ctx context.Context) Result {
	r := a.SetChildLock(ctx, false)
	r.Intent = IntentUnlock
	return r
}

// Clean resets the filter-clean indicator.
func (a *Adapter) Clean(ctx context.Context) Result {
	return a.tryCommand(IntentClean, func() error { return a.driver.Clean(ctx) }, nil)
}

// Refresh reconciles the cache with a fresh status read, unless the
// previous command asked for the next poll to be skipped. A read that
// overlaps a successful command is discarded.
func (a *Adapter) Refresh(ctx context.Context) Result {
	a.mu.Lock()
	if a.suppressNextPoll {
		a.suppressNextPoll = false
		a.mu.Unlock()
		a.logger.Debug("skipping poll after local state change", "device", a.name)
		return Result{Intent: IntentRefresh, Outcome: OutcomeSkipped}
	}
	startRev := a.revision
	a.mu.Unlock()

	snap, err := a.driver.Status(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.revision != startRev {
		a.logger.Debug("discarding poll superseded by a command", "device", a.name)
		return Result{Intent: IntentRefresh, Outcome: OutcomeSkipped}
	}

	if err != nil {
		a.available = false
		a.logger.Error("got exception while fetching the state", "device", a.name, "error", err)
		return Result{Intent: IntentRefresh, Outcome: outcomeFor(err), Err: err}
	}

	if m, ok := snap.Mode(); !ok && snap.RawMode() != "" {
		a.logger.Debug("device reported unrecognised mode", "device", a.name, "mode", m, "raw", snap.RawMode())
	}

	a.available = true
	if on, ok := snap.IsOn(); ok {
		a.isOn = &on
	} else {
		a.isOn = nil
	}
	a.attrs = snap.Attributes()

	return Result{Intent: IntentRefresh, Outcome: OutcomeSuccess}
}

// tryCommand runs call and folds its error into a Result. Validation errors
// are returned as-is, a refusal proves the device is reachable, and other
// device errors clear availability. onSuccess runs under
// the lock.
func (a *Adapter) tryCommand(intent Intent, call func() error, onSuccess func()) Result {
	err := call()
	outcome := outcomeFor(err)

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case err == nil:
		a.available = true
		a.revision++
		if onSuccess != nil {
			onSuccess()
		}
		return Result{Intent: intent, Outcome: OutcomeSuccess}

	case errors.Is(err, ErrInvalidParameter):
		a.logger.Warn("rejected command", "device", a.name, "intent", intent, "error", err)
		return Result{Intent: intent, Outcome: outcome, Err: err}

	case errors.Is(err, ErrCommandRejected):
		a.available = true
		a.logger.Warn("device refused command", "device", a.name, "intent", intent, "error", err)
		return Result{Intent: intent, Outcome: outcome, Err: err}

	default:
		a.available = false
		a.logger.Error("command failed", "device", a.name, "intent", intent, "error", err)
		return Result{Intent: intent, Outcome: outcome, Err: err}
	}
}
