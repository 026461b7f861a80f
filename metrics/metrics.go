// Package metrics exposes controller telemetry to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/victorjacobs/go-nilan/climate"
)

var states = []climate.State{climate.Off, climate.Idle, climate.Heating, climate.Cooling, climate.FanOnly}

// Collector implements climate.Observer.
type Collector struct {
	state          *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	sensorDegraded prometheus.Gauge
	unitFault      prometheus.Gauge
	setpoint       prometheus.Gauge
	current        prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nilan_controller_state",
			Help: "1 for the state the controller is in, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nilan_transitions_total",
			Help: "Committed controller state transitions.",
		}, []string{"from", "to"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nilan_dispatch_attempts_total",
			Help: "Unit command attempts by result.",
		}, []string{"result"}),
		sensorDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nilan_sensor_degraded",
			Help: "1 while no fresh temperature measurement is available.",
		}),
		unitFault: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nilan_unit_fault",
			Help: "1 while the unit does not acknowledge commands.",
		}),
		setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nilan_setpoint_celsius",
			Help: "Target temperature.",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nilan_current_temperature_celsius",
			Help: "Last trusted room temperature.",
		}),
	}

	reg.MustRegister(c.state, c.transitions, c.dispatches, c.sensorDegraded, c.unitFault, c.setpoint, c.current)
	return c
}

func (c *Collector) ObserveDispatch(result climate.CommandResult) {
	c.dispatches.WithLabelValues(result.String()).Inc()
}

func (c *Collector) ObserveTransition(from, to climate.State) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (c *Collector) ObserveStatus(status climate.Status) {
	for _, s := range states {
		c.state.WithLabelValues(s.String()).Set(boolToFloat(s == status.State))
	}

	c.sensorDegraded.Set(boolToFloat(status.SensorDegraded))
	c.unitFault.Set(boolToFloat(status.UnitFault))
	c.setpoint.Set(status.Setpoint)
	if status.HasCurrent {
		c.current.Set(status.Current)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
