package purifier

import "fmt"

// OperationMode is the purifier's operating mode.
type OperationMode int

// Operation modes. ModeUnknown only appears in decoded status, never as
// a valid command argument.
const (
	ModeUnknown OperationMode = iota
	ModeAuto
	ModeManual
	ModeSleep
)

// Wire mode indices for set_wind. The device depends on these exact values.
const (
	windModeAuto   = 0
	windModeManual = 1
	windModeSleep  = 2

	// windSpeedFixed is the speed argument sent with auto and sleep.
	windSpeedFixed = 1
)

// Speed bounds accepted by set_wind in manual mode.
const (
	MinSpeed = 0
	MaxSpeed = 4
)

// Modes lists the recognised modes in display order.
var Modes = []OperationMode{ModeAuto, ModeSleep, ModeManual}

// String returns the lowercase wire and display form.
func (m OperationMode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	case ModeSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the three recognised modes.
func (m OperationMode) Valid() bool {
	return m == ModeAuto || m == ModeManual || m == ModeSleep
}

// MarshalText implements encoding.TextMarshaler.
func (m OperationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseOperationMode.
func (m *OperationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseOperationMode decodes a mode string. Only the exact lowercase forms
// auto, manual and sleep are accepted; anything else fails with
// ErrInvalidParameter.
func ParseOperationMode(s string) (OperationMode, error) {
	switch s {
	case "auto":
		return ModeAuto, nil
	case "manual":
		return ModeManual, nil
	case "sleep":
		return ModeSleep, nil
	default:
		return ModeUnknown, fmt.Errorf("%w: mode %q", ErrInvalidParameter, s)
	}
}

// ModeNames returns the string form of Modes.
func ModeNames() []string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = m.String()
	}
	return names
}

// SpeedNames returns the speeds offered to users, "1" through "4".
func SpeedNames() []string {
	names := make([]string, 0, MaxSpeed)
	for s := 1; s <= MaxSpeed; s++ {
		names = append(names, fmt.Sprintf("%d", s))
	}
	return names
}

func validateSpeed(speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: speed %d outside [%d,%d]", ErrInvalidParameter, speed, MinSpeed, MaxSpeed)
	}
	return nil
}
