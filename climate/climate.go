// Package climate contains the controller that decides whether the Nilan unit
// should heat, cool, ventilate or idle.
//
// The package has no knowledge of MQTT, serial ports or wall-clock time: all
// time is passed in through events, and the unit is reached through the
// UnitClient interface.
package climate

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRangeSetpoint is wrapped when a requested target was clamped.
	ErrOutOfRangeSetpoint = errors.New("setpoint out of range")
	// ErrStaleMeasurement is logged when the controller enters fail-safe.
	ErrStaleMeasurement = errors.New("no fresh temperature measurement")
	// ErrOutOfOrder marks a reading not newer than the last accepted one.
	ErrOutOfOrder = errors.New("measurement older than last accepted reading")
	// ErrImplausibleReading marks a reading outside the physical range.
	ErrImplausibleReading = errors.New("implausible temperature reading")
	// ErrTransientCommand is wrapped by unit errors that are worth retrying.
	ErrTransientCommand = errors.New("transient unit command failure")
	// ErrPersistentCommand is returned once a command is given up on.
	ErrPersistentCommand = errors.New("persistent unit command failure")
	// ErrQueueClosed is returned by Submit after Run has exited.
	ErrQueueClosed = errors.New("controller is not running")
	// ErrQueueFull is returned by TrySubmit when the event queue is full.
	ErrQueueFull = errors.New("controller event queue is full")
)

// State is what the controller is currently asking the unit to do.
type State int

const (
	Off State = iota
	Idle
	Heating
	Cooling
	FanOnly
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case Idle:
		return "idle"
	case Heating:
		return "heating"
	case Cooling:
		return "cooling"
	case FanOnly:
		return "fan"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by its String name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Actuating reports whether the state drives the heater or the compressor.
func (s State) Actuating() bool {
	return s == Heating || s == Cooling
}

// Mode is the operating mode requested by the user or automation.
type Mode int

const (
	ModeOff Mode = iota
	ModeAuto
	ModeHeat
	ModeCool
	ModeFanOnly
)

var modeNames = map[Mode]string{
	ModeOff:     "off",
	ModeAuto:    "auto",
	ModeHeat:    "heat",
	ModeCool:    "cool",
	ModeFanOnly: "fan_only",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText encodes the mode by its Home Assistant name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode accepts the Home Assistant mode names.
func ParseMode(s string) (Mode, error) {
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}
	return ModeOff, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) allowsHeating() bool {
	return m == ModeAuto || m == ModeHeat
}

func (m Mode) allowsCooling() bool {
	return m == ModeAuto || m == ModeCool
}

// CommandResult is the outcome of dispatching a state to the unit.
type CommandResult int

const (
	Acknowledged CommandResult = iota
	TransientFailure
	PersistentFailure
)

func (r CommandResult) String() string {
	switch r {
	case Acknowledged:
		return "acknowledged"
	case TransientFailure:
		return "transient_failure"
	case PersistentFailure:
		return "persistent_failure"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}
