package climate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/victorjacobs/go-nilan/logging"
)

// Status is what the controller reports to the host.
type Status struct {
	Mode           Mode      `json:"mode"`
	State          State     `json:"action"`
	Setpoint       float64   `json:"target_temperature"`
	Current        float64   `json:"current_temperature"`
	HasCurrent     bool      `json:"has_current_temperature"`
	FanStep        int       `json:"fan_step"`
	SensorDegraded bool      `json:"sensor_degraded"`
	UnitFault      bool      `json:"unit_fault"`
	LastTransition time.Time `json:"last_transition"`
}

// Reporter receives the controller status whenever it changes.
type Reporter interface {
	ReportState(status Status)
}

// Observer receives controller telemetry.
type Observer interface {
	ObserveDispatch(result CommandResult)
	ObserveTransition(from, to State)
	ObserveStatus(status Status)
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(CommandResult)  {}
func (nopObserver) ObserveTransition(State, State) {}
func (nopObserver) ObserveStatus(Status)           {}

type EventKind int

const (
	EventTick EventKind = iota
	EventSetpoint
	EventMeasurement
	EventMode
	EventFanStep
)

// Event is one input to the arbitration loop. At is the time the event
// happened; for measurements it is the reading's timestamp.
type Event struct {
	Kind    EventKind
	Value   float64
	Mode    Mode
	FanStep int
	At      time.Time
}

func TickEvent(at time.Time) Event { return Event{Kind: EventTick, At: at} }

func SetpointEvent(value float64, at time.Time) Event {
	return Event{Kind: EventSetpoint, Value: value, At: at}
}

func MeasurementEvent(value float64, at time.Time) Event {
	return Event{Kind: EventMeasurement, Value: value, At: at}
}

func ModeEvent(mode Mode, at time.Time) Event {
	return Event{Kind: EventMode, Mode: mode, At: at}
}

func FanStepEvent(step int, at time.Time) Event {
	return Event{Kind: EventFanStep, FanStep: step, At: at}
}

type Config struct {
	DefaultSetpoint float64
	MinSetpoint     float64
	MaxSetpoint     float64
	Hysteresis      float64
	MinDwell        time.Duration
	Staleness       time.Duration
	Tick            time.Duration
	QueueSize       int
	InitialMode     Mode
	FanStep         int
	HistorySize     int
	Dispatcher      DispatcherConfig
}

// DefaultConfig mirrors the defaults of the configuration file.
func DefaultConfig() Config {
	return Config{
		DefaultSetpoint: 21,
		MinSetpoint:     5,
		MaxSetpoint:     30,
		Hysteresis:      0.5,
		MinDwell:        5 * time.Minute,
		Staleness:       10 * time.Minute,
		Tick:            30 * time.Second,
		QueueSize:       64,
		InitialMode:     ModeAuto,
		FanStep:         2,
		HistorySize:     50,
		Dispatcher: DispatcherConfig{
			MaxAttempts:    3,
			Backoff:        500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			CommandTimeout: 3 * time.Second,
		},
	}
}

// Controller runs the arbitration loop. Everything except Submit, the
// Request* helpers, Snapshot and History must only be touched from the
// goroutine running Run.
type Controller struct {
	cfg        Config
	log        *logging.Logger
	setpoint   *SetpointTracker
	filter     *MeasurementFilter
	arbiter    *Arbiter
	dispatcher *Dispatcher
	reporter   Reporter
	observer   Observer
	now        func() time.Time

	events chan Event
	done   chan struct{}

	mode     Mode
	fanStep  int
	fault    bool
	lastPass time.Time

	mu       sync.Mutex
	status   Status
	history  *history
	reported bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for events created by the Request helpers and
// ticks. It is also the upper bound for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithObserver(observer Observer) Option {
	return func(c *Controller) { c.observer = observer }
}

func WithReporter(reporter Reporter) Option {
	return func(c *Controller) { c.reporter = reporter }
}

func NewController(cfg Config, unit UnitClient, log *logging.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		log:      log,
		observer: nopObserver{},
		now:      time.Now,
		events:   make(chan Event, max(cfg.QueueSize, 1)),
		done:     make(chan struct{}),
		mode:     cfg.InitialMode,
		fanStep:  cfg.FanStep,
		history:  newHistory(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.arbiter = NewArbiter(cfg.Hysteresis, cfg.MinDwell)
	c.setpoint = NewSetpointTracker(cfg.DefaultSetpoint, cfg.MinSetpoint, cfg.MaxSetpoint, c.arbiter.MarkDirty)
	c.filter = NewMeasurementFilter(cfg.Staleness)
	c.dispatcher = NewDispatcher(unit, cfg.Dispatcher, log, c.observer)

	c.status = c.buildStatus(0, false, false)

	return c
}

// Run processes events and ticks until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	tick := c.cfg.Tick
	if tick <= 0 {
		tick = DefaultConfig().Tick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	c.log.Infow("Controller started", "mode", c.mode, "setpoint", c.setpoint.Target(), "tick", tick)
	c.Handle(ctx, TickEvent(c.now()))

	for {
		select {
		case <-ctx.Done():
			c.log.Infow("Controller stopped")
			return nil
		case ev := <-c.events:
			c.Handle(ctx, ev)
		case <-ticker.C:
			c.Handle(ctx, TickEvent(c.now()))
		}
	}
}

// Submit queues an event for the loop. It blocks while the queue is full.
func (c *Controller) Submit(ctx context.Context, ev Event) error {
	select {
	case <-c.done:
		return ErrQueueClosed
	default:
	}

	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues an event without waiting for room in the queue.
func (c *Controller) TrySubmit(ev Event) error {
	select {
	case <-c.done:
		return ErrQueueClosed
	default:
	}

	select {
	case c.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// RequestTarget accepts a target temperature change from the host.
func (c *Controller) RequestTarget(ctx context.Context, value float64) error {
	return c.Submit(ctx, SetpointEvent(value, c.now()))
}

// RequestMode accepts a mode change from the host.
func (c *Controller) RequestMode(ctx context.Context, mode Mode) error {
	return c.Submit(ctx, ModeEvent(mode, c.now()))
}

// RequestFanStep accepts a ventilation step (0-4) from the host.
func (c *Controller) RequestFanStep(ctx context.Context, step int) error {
	return c.Submit(ctx, FanStepEvent(step, c.now()))
}

// maxReadingSkew is how far ahead of the controller clock a measurement
// timestamp may be before the reading is dropped.
const maxReadingSkew = 2 * time.Minute

// Handle applies one event and runs one arbitration pass. The pass runs at
// the event's time, but never later than the controller clock.
func (c *Controller) Handle(ctx context.Context, ev Event) {
	now := c.now()

	switch ev.Kind {
	case EventSetpoint:
		stored, err := c.setpoint.Set(ev.Value)
		if err != nil {
			c.log.Warnw("Setpoint rejected or clamped", "requested", ev.Value, "stored", stored, "err", err)
		}
	case EventMeasurement:
		if ev.At.After(now.Add(maxReadingSkew)) {
			c.log.Warnw("Dropped measurement stamped in the future", "value", ev.Value, "at", ev.At, "now", now)
		} else if err := c.filter.Update(ev.Value, ev.At); err != nil {
			if errors.Is(err, ErrOutOfOrder) {
				c.log.Debugw("Dropped measurement", "err", err)
			} else {
				c.log.Warnw("Dropped measurement", "err", err)
			}
		}
	case EventMode:
		if ev.Mode != c.mode {
			c.log.Infow("Mode changed", "from", c.mode, "to", ev.Mode)
			c.mode = ev.Mode
			c.arbiter.MarkDirty()
		}
	case EventFanStep:
		if ev.FanStep < 0 || ev.FanStep > 4 {
			c.log.Warnw("Ignoring fan step out of range", "step", ev.FanStep)
		} else if ev.FanStep != c.fanStep {
			c.fanStep = ev.FanStep
			c.arbiter.MarkDirty()
		}
	}

	at := ev.At
	if at.After(now) {
		at = now
	}
	c.pass(ctx, at)
}

func (c *Controller) pass(ctx context.Context, now time.Time) {
	if now.Before(c.lastPass) {
		now = c.lastPass
	}
	c.lastPass = now

	current, ok := c.filter.Current(now)
	d := c.arbiter.Decide(Input{
		Mode:           c.mode,
		Setpoint:       c.setpoint.Target(),
		Measurement:    current,
		HasMeasurement: ok,
		Now:            now,
	})

	if d.SensorDegraded && !c.status.SensorDegraded {
		c.log.Warnw("Entering fail-safe", "err", ErrStaleMeasurement, "last_update", c.filter.LastUpdate())
	}

	from := c.arbiter.State()
	if d.State != from || c.arbiter.Dirty() || c.fault {
		result := c.dispatcher.Apply(ctx, d.State, Params{Setpoint: c.setpoint.Target(), FanStep: c.fanStep})

		if result == Acknowledged {
			if c.fault {
				c.log.Infow("Unit communication restored")
			}
			c.fault = false
			c.arbiter.Commit(d)

			if d.State != from {
				c.recordTransition(from, d)
			}
		} else {
			if !c.fault {
				c.log.Errorw("Unit fault, holding last known state", "state", from, "wanted", d.State, "err", ErrPersistentCommand)
			}
			c.fault = true
		}
	}

	c.publish(c.buildStatus(current, ok, d.SensorDegraded))
}

func (c *Controller) recordTransition(from State, d Decision) {
	c.mu.Lock()
	t := c.history.add(from, d.State, d.Reason, d.At)
	c.mu.Unlock()

	c.observer.ObserveTransition(from, d.State)
	c.log.Infow("State changed", "from", from, "to", d.State, "reason", d.Reason, "id", t.ID)
}

func (c *Controller) buildStatus(current float64, hasCurrent, degraded bool) Status {
	return Status{
		Mode:           c.mode,
		State:          c.arbiter.State(),
		Setpoint:       c.setpoint.Target(),
		Current:        current,
		HasCurrent:     hasCurrent,
		FanStep:        c.fanStep,
		SensorDegraded: degraded,
		UnitFault:      c.fault,
		LastTransition: c.lastTransition(),
	}
}

func (c *Controller) lastTransition() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.history.list()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[len(entries)-1].At
}

func (c *Controller) publish(status Status) {
	c.mu.Lock()
	changed := !c.reported || status != c.status
	c.status = status
	c.reported = true
	c.mu.Unlock()

	if !changed {
		return
	}

	c.observer.ObserveStatus(status)
	if c.reporter != nil {
		c.reporter.ReportState(status)
	}
}

// Snapshot returns the most recent status.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// History returns the recorded transitions, oldest first.
func (c *Controller) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.history.list()
}
