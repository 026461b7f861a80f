package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/victorjacobs/go-nilan/climate"
)

func TestCollector(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveDispatch(climate.Acknowledged)
	c.ObserveDispatch(climate.TransientFailure)
	c.ObserveDispatch(climate.TransientFailure)
	c.ObserveTransition(climate.Idle, climate.Heating)
	c.ObserveStatus(climate.Status{State: climate.Heating, Setpoint: 21.5, Current: 19.5, HasCurrent: true, UnitFault: true})

	assert.InDelta(t, 2.0, testutil.ToFloat64(c.dispatches.WithLabelValues("transient_failure")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("idle", "heating")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("heating")), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("idle")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.unitFault), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(c.sensorDegraded), 1e-9)
	assert.InDelta(t, 21.5, testutil.ToFloat64(c.setpoint), 1e-9)
	assert.InDelta(t, 19.5, testutil.ToFloat64(c.current), 1e-9)
}
