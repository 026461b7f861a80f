package climate

import "time"

// Reason explains why the arbiter picked a state.
type Reason string

const (
	ReasonStaleMeasurement Reason = "stale_measurement"
	ReasonModeOff          Reason = "mode_off"
	ReasonBelowBand        Reason = "below_band"
	ReasonAboveBand        Reason = "above_band"
	ReasonInBand           Reason = "in_band"
	ReasonModeDisallows    Reason = "mode_disallows"
	ReasonDwell            Reason = "dwell_guard"
)

// Input is everything one arbitration pass looks at besides the arbiter's own
// committed state and dwell timer.
type Input struct {
	Mode           Mode
	Setpoint       float64
	Measurement    float64
	HasMeasurement bool
	Now            time.Time
}

// Decision is the outcome of one pass. It only takes effect once committed.
type Decision struct {
	State          State
	Reason         Reason
	SensorDegraded bool
	At             time.Time
}

// Arbiter is the HVAC state machine.
type Arbiter struct {
	hysteresis float64
	minDwell   time.Duration

	state State
	dirty bool

	// anchor is the time of the last committed transition into or out of an
	// actuating state.
	anchor    time.Time
	anchorSet bool
}

func NewArbiter(hysteresis float64, minDwell time.Duration) *Arbiter {
	return &Arbiter{
		hysteresis: hysteresis,
		minDwell:   minDwell,
		state:      Off,
		dirty:      true,
	}
}

// State returns the last committed state.
func (a *Arbiter) State() State {
	return a.state
}

// MarkDirty forces the next decision to be dispatched even when the state
// does not change.
func (a *Arbiter) MarkDirty() {
	a.dirty = true
}

func (a *Arbiter) Dirty() bool {
	return a.dirty
}

// Decide computes the next state without changing the arbiter.
func (a *Arbiter) Decide(in Input) Decision {
	// Without a measurement the unit never actuates; a unit switched off stays off.
	if in.Mode == ModeOff {
		return Decision{State: Off, Reason: ReasonModeOff, SensorDegraded: !in.HasMeasurement, At: in.Now}
	}
	if !in.HasMeasurement {
		return Decision{State: Idle, Reason: ReasonStaleMeasurement, SensorDegraded: true, At: in.Now}
	}

	rest := Idle
	if in.Mode == ModeFanOnly {
		rest = FanOnly
	}

	want, reason := rest, ReasonInBand
	switch {
	case in.Measurement < in.Setpoint-a.hysteresis:
		if in.Mode.allowsHeating() {
			want, reason = Heating, ReasonBelowBand
		} else {
			reason = ReasonModeDisallows
		}
	case in.Measurement > in.Setpoint+a.hysteresis:
		if in.Mode.allowsCooling() {
			want, reason = Cooling, ReasonAboveBand
		} else {
			reason = ReasonModeDisallows
		}
	}

	if want.Actuating() && want != a.state && !a.dwellElapsed(in.Now) {
		return Decision{State: rest, Reason: ReasonDwell, At: in.Now}
	}

	return Decision{State: want, Reason: reason, At: in.Now}
}

func (a *Arbiter) dwellElapsed(now time.Time) bool {
	return !a.anchorSet || now.Sub(a.anchor) >= a.minDwell
}

// Commit makes d the current state. Called once the unit acknowledged it.
func (a *Arbiter) Commit(d Decision) {
	if d.State != a.state && (d.State.Actuating() || a.state.Actuating()) {
		a.anchor = d.At
		a.anchorSet = true
	}

	a.state = d.State
	a.dirty = false
}
