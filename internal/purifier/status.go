package purifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Device property names, in the order the status read requests them.
const (
	PropPower = "power"
	PropMode  = "mode"
	PropSpeed = "speed"
	PropLock  = "lock"
	PropPM    = "pm"
	PropClean = "clean"
)

// statusProperties is the batched status read. maxStatusProperties lets the
// whole batch travel in one get_prop request.
var statusProperties = []string{PropPower, PropMode, PropSpeed, PropLock, PropPM, PropClean}

const maxStatusProperties = 6

// Raw sentinels the device uses.
const (
	powerOn     = "on"
	lockLocked  = "lock"
	cleanNeeded = "y"
)

// StatusSnapshot is a decoded status reply. Fields the device did not
// report are unknown; use the accessors to tell unknown from false or zero.
type StatusSnapshot struct {
	power     string
	aqi       int
	mode      OperationMode
	rawMode   string
	childLock bool
	speed     int
	clean     bool

	known map[string]bool
}

// DecodeStatus builds a snapshot from a property-name to value map.
// It never fails: missing or ill-typed values become unknown, and an
// unrecognised mode string becomes ModeUnknown with the raw text kept.
func DecodeStatus(values map[string]any) StatusSnapshot {
	s := StatusSnapshot{known: make(map[string]bool, len(statusProperties))}

	if v, ok := values[PropPower].(string); ok {
		s.power = v
		s.known[PropPower] = true
	}
	if v, ok := toInt(values[PropPM]); ok {
		s.aqi = v
		s.known[PropPM] = true
	}
	if v, ok := values[PropMode].(string); ok {
		s.rawMode = v
		if m, err := ParseOperationMode(v); err == nil {
			s.mode = m
			s.known[PropMode] = true
		}
	}
	if v, ok := values[PropLock].(string); ok {
		s.childLock = v == lockLocked
		s.known[PropLock] = true
	}
	if v, ok := toInt(values[PropSpeed]); ok {
		s.speed = v
		s.known[PropSpeed] = true
	}
	if v, ok := values[PropClean].(string); ok {
		s.clean = v == cleanNeeded
		s.known[PropClean] = true
	}

	return s
}

// Power returns the raw power string.
func (s StatusSnapshot) Power() (string, bool) { return s.power, s.known[PropPower] }

// IsOn reports power == "on". Unknown when power was not reported.
func (s StatusSnapshot) IsOn() (bool, bool) { return s.power == powerOn, s.known[PropPower] }

// AQI returns the device pm reading.
func (s StatusSnapshot) AQI() (int, bool) { return s.aqi, s.known[PropPM] }

// Mode returns the decoded mode; ModeUnknown with ok=false when missing
// or unrecognised.
func (s StatusSnapshot) Mode() (OperationMode, bool) { return s.mode, s.known[PropMode] }

// RawMode is the mode string exactly as reported, empty when missing.
func (s StatusSnapshot) RawMode() string { return s.rawMode }

// ChildLock reports whether the control panel is locked.
func (s StatusSnapshot) ChildLock() (bool, bool) { return s.childLock, s.known[PropLock] }

// Speed returns the fan speed as reported by the device.
func (s StatusSnapshot) Speed() (int, bool) { return s.speed, s.known[PropSpeed] }

// Clean reports whether the device asks for a filter clean.
func (s StatusSnapshot) Clean() (bool, bool) { return s.clean, s.known[PropClean] }

// Attributes renders the snapshot as adapter attributes. Unknown fields
// map to nil.
func (s StatusSnapshot) Attributes() map[string]any {
	attrs := map[string]any{
		AttrPower:     nil,
		AttrMode:      nil,
		AttrSpeed:     nil,
		AttrChildLock: nil,
		AttrAQI:       nil,
		AttrClean:     nil,
	}
	if v, ok := s.Power(); ok {
		attrs[AttrPower] = v
	}
	if v, ok := s.Mode(); ok {
		attrs[AttrMode] = v.String()
	}
	if v, ok := s.Speed(); ok {
		attrs[AttrSpeed] = v
	}
	if v, ok := s.ChildLock(); ok {
		attrs[AttrChildLock] = v
	}
	if v, ok := s.AQI(); ok {
		attrs[AttrAQI] = v
	}
	if v, ok := s.Clean(); ok {
		attrs[AttrClean] = v
	}
	return attrs
}

// String mirrors the device's own status listing.
func (s StatusSnapshot) String() string {
	return fmt.Sprintf("<StatusSnapshot power=%s aqi=%s mode=%s child_lock=%s speed=%s clean=%s>",
		s.field(PropPower, s.power), s.field(PropPM, s.aqi), s.modeField(),
		s.field(PropLock, s.childLock), s.field(PropSpeed, s.speed), s.field(PropClean, s.clean))
}

func (s StatusSnapshot) modeField() string {
	if s.known[PropMode] {
		return s.mode.String()
	}
	if s.rawMode != "" {
		return fmt.Sprintf("unknown(%q)", s.rawMode)
	}
	return "unknown"
}

func (s StatusSnapshot) field(prop string, v any) string {
	if !s.known[prop] {
		return "unknown"
	}
	return fmt.Sprint(v)
}

// toInt accepts the numeric shapes a JSON decoder or a test may produce.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
