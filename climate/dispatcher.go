package climate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/victorjacobs/go-nilan/logging"
)

// CommandKind selects which unit setting a Command writes.
type CommandKind int

const (
	CommandRun CommandKind = iota
	CommandOperationMode
	CommandFanStep
	CommandTargetTemperature
)

func (k CommandKind) String() string {
	switch k {
	case CommandRun:
		return "run"
	case CommandOperationMode:
		return "operation_mode"
	case CommandFanStep:
		return "fan_step"
	case CommandTargetTemperature:
		return "target_temperature"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Operation modes understood by the unit.
const (
	OperationOff  = 0
	OperationHeat = 1
	OperationCool = 2
	OperationAuto = 3
)

// Command is a single setting written to the unit. TargetTemperature values
// are hundredths of a degree.
type Command struct {
	Kind  CommandKind
	Value uint16
}

func (c Command) String() string {
	return fmt.Sprintf("%v=%d", c.Kind, c.Value)
}

// UnitClient talks to the ventilation unit. Errors wrapping
// ErrTransientCommand, or deadline expiry, are retried.
type UnitClient interface {
	SendCommand(ctx context.Context, cmd Command) error
}

// Params carries the values a dispatch writes besides the state itself.
type Params struct {
	Setpoint float64
	FanStep  int
}

// Plan translates a state into the commands that put the unit in it.
func Plan(state State, p Params) []Command {
	if state == Off {
		return []Command{{Kind: CommandRun, Value: 0}}
	}

	mode := OperationOff
	switch state {
	case Heating:
		mode = OperationHeat
	case Cooling:
		mode = OperationCool
	}

	return []Command{
		{Kind: CommandRun, Value: 1},
		{Kind: CommandOperationMode, Value: uint16(mode)},
		{Kind: CommandFanStep, Value: uint16(p.FanStep)},
		{Kind: CommandTargetTemperature, Value: uint16(math.Round(p.Setpoint * 100))},
	}
}

type DispatcherConfig struct {
	MaxAttempts    int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	CommandTimeout time.Duration
}

// Dispatcher sends planned commands to the unit, retrying transient failures.
type Dispatcher struct {
	client   UnitClient
	cfg      DispatcherConfig
	log      *logging.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(client UnitClient, cfg DispatcherConfig, log *logging.Logger, observer Observer) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &Dispatcher{
		client:   client,
		cfg:      cfg,
		log:      log,
		observer: observer,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Apply puts the unit into state. It stops at the first command that fails
// persistently.
func (d *Dispatcher) Apply(ctx context.Context, state State, p Params) CommandResult {
	for _, cmd := range Plan(state, p) {
		if err := d.send(ctx, cmd); err != nil {
			d.log.Errorw("Dispatch failed", "state", state, "command", cmd, "err", err)
			return PersistentFailure
		}
	}

	d.log.Debugw("Dispatched", "state", state, "setpoint", p.Setpoint, "fan_step", p.FanStep)
	return Acknowledged
}

func (d *Dispatcher) send(ctx context.Context, cmd Command) error {
	delay := d.cfg.Backoff

	for attempt := 1; ; attempt++ {
		err := d.attempt(ctx, cmd)
		if err == nil {
			d.observer.ObserveDispatch(Acknowledged)
			return nil
		}

		if ctx.Err() != nil {
			d.observer.ObserveDispatch(PersistentFailure)
			return fmt.Errorf("%w: %v: %w", ErrPersistentCommand, cmd, ctx.Err())
		}
		if !IsTransient(err) {
			d.observer.ObserveDispatch(PersistentFailure)
			return fmt.Errorf("%w: %v: %w", ErrPersistentCommand, cmd, err)
		}

		d.observer.ObserveDispatch(TransientFailure)
		if attempt >= d.cfg.MaxAttempts {
			return fmt.Errorf("%w: %v: gave up after %d attempts: %w", ErrPersistentCommand, cmd, attempt, err)
		}

		d.log.Warnw("Unit command failed, retrying", "command", cmd, "attempt", attempt, "backoff", delay, "err", err)

		if err := d.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v: %w", ErrPersistentCommand, cmd, err)
		}

		delay *= 2
		if d.cfg.MaxBackoff > 0 && delay > d.cfg.MaxBackoff {
			delay = d.cfg.MaxBackoff
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, cmd Command) error {
	if d.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.CommandTimeout)
		defer cancel()
	}

	return d.client.SendCommand(ctx, cmd)
}

// IsTransient reports whether a unit error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientCommand) || errors.Is(err, context.DeadlineExceeded)
}
