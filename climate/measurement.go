package climate

import (
	"fmt"
	"math"
	"time"
)

// Readings outside this range are sensor faults, not room temperatures.
const (
	minPlausibleTemp = -40.0
	maxPlausibleTemp = 80.0
)

// MeasurementFilter keeps the last trusted current-temperature reading.
type MeasurementFilter struct {
	staleness time.Duration

	value float64
	at    time.Time
	valid bool
}

func NewMeasurementFilter(staleness time.Duration) *MeasurementFilter {
	return &MeasurementFilter{staleness: staleness}
}

// Update records a reading taken at the given time. Readings that are not
// strictly newer than the last accepted one return ErrOutOfOrder and are
// dropped, as are implausible values.
func (f *MeasurementFilter) Update(value float64, at time.Time) error {
	if math.IsNaN(value) || value < minPlausibleTemp || value > maxPlausibleTemp {
		return fmt.Errorf("%w: %v", ErrImplausibleReading, value)
	}
	if f.valid && !at.After(f.at) {
		return fmt.Errorf("%w: %v at %v, last %v", ErrOutOfOrder, value, at.Format(time.RFC3339Nano), f.at.Format(time.RFC3339Nano))
	}

	f.value = value
	f.at = at
	f.valid = true

	return nil
}

// Current returns the last accepted reading if it is no older than the
// staleness threshold at now.
func (f *MeasurementFilter) Current(now time.Time) (float64, bool) {
	if !f.valid || now.Sub(f.at) > f.staleness {
		return 0, false
	}
	return f.value, true
}

// LastUpdate is the timestamp of the last accepted reading, zero if none.
func (f *MeasurementFilter) LastUpdate() time.Time {
	return f.at
}
