package climate

import (
	"fmt"
	"math"
)

// SetpointTracker holds the target temperature.
type SetpointTracker struct {
	target   float64
	min, max float64
	onChange func()
}

// NewSetpointTracker starts at def; onChange is called after every accepted
// update and may be nil.
func NewSetpointTracker(def, min, max float64, onChange func()) *SetpointTracker {
	return &SetpointTracker{
		target:   def,
		min:      min,
		max:      max,
		onChange: onChange,
	}
}

// Set stores value, clamped to the configured range. When clamping was needed
// the stored value is returned together with an error wrapping
// ErrOutOfRangeSetpoint. Non-finite values are rejected outright.
func (s *SetpointTracker) Set(value float64) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return s.target, fmt.Errorf("%w: %v", ErrOutOfRangeSetpoint, value)
	}

	var err error
	if value < s.min || value > s.max {
		clamped := math.Min(math.Max(value, s.min), s.max)
		err = fmt.Errorf("%w: %v clamped to %v", ErrOutOfRangeSetpoint, value, clamped)
		value = clamped
	}

	changed := value != s.target
	s.target = value
	if changed && s.onChange != nil {
		s.onChange()
	}

	return value, err
}

func (s *SetpointTracker) Target() float64 {
	return s.target
}
