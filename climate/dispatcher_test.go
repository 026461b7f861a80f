package climate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-nilan/logging"
)

var errTransient = fmt.Errorf("no response: %w", ErrTransientCommand)

type countingObserver struct {
	dispatches  map[CommandResult]int
	transitions [][2]State
	statuses    []Status
}

func newCountingObserver() *countingObserver {
	return &countingObserver{dispatches: map[CommandResult]int{}}
}

func (o *countingObserver) ObserveDispatch(r CommandResult) { o.dispatches[r]++ }
func (o *countingObserver) ObserveTransition(from, to State) {
	o.transitions = append(o.transitions, [2]State{from, to})
}
func (o *countingObserver) ObserveStatus(s Status) { o.statuses = append(o.statuses, s) }

func newTestDispatcher(unit UnitClient, observer Observer) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(unit, DispatcherConfig{
		MaxAttempts:    3,
		Backoff:        100 * time.Millisecond,
		MaxBackoff:     150 * time.Millisecond,
		CommandTimeout: time.Second,
	}, logging.Nop(), observer)

	var sleeps []time.Duration
	d.sleep = func(ctx context.Context, delay time.Duration) error {
		sleeps = append(sleeps, delay)
		return ctx.Err()
	}
	return d, &sleeps
}

func TestPlan(t *testing.T) {
	p := Params{Setpoint: 21.5, FanStep: 3}

	assert.Equal(t, []Command{{Kind: CommandRun, Value: 0}}, Plan(Off, p))

	tests := []struct {
		state State
		mode  uint16
	}{
		{Idle, OperationOff},
		{FanOnly, OperationOff},
		{Heating, OperationHeat},
		{Cooling, OperationCool},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, []Command{
				{Kind: CommandRun, Value: 1},
				{Kind: CommandOperationMode, Value: tt.mode},
				{Kind: CommandFanStep, Value: 3},
				{Kind: CommandTargetTemperature, Value: 2150},
			}, Plan(tt.state, p))
		})
	}
}

func TestDispatcherAcknowledged(t *testing.T) {
	unit := &FakeUnit{}
	observer := newCountingObserver()
	d, sleeps := newTestDispatcher(unit, observer)

	result := d.Apply(context.Background(), Heating, Params{Setpoint: 21, FanStep: 2})

	assert.Equal(t, Acknowledged, result)
	assert.Len(t, unit.Commands, 4)
	assert.Empty(t, *sleeps)
	assert.Equal(t, 4, observer.dispatches[Acknowledged])
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	unit := &FakeUnit{Errors: []error{errTransient, errTransient}}
	observer := newCountingObserver()
	d, sleeps := newTestDispatcher(unit, observer)

	result := d.Apply(context.Background(), Off, Params{})

	assert.Equal(t, Acknowledged, result)
	assert.Equal(t, 3, unit.Calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, *sleeps)
	assert.Equal(t, 2, observer.dispatches[TransientFailure])
}

func TestDispatcherEscalatesAfterRetryBudget(t *testing.T) {
	unit := &FakeUnit{Err: errTransient}
	d, sleeps := newTestDispatcher(unit, nil)

	result := d.Apply(context.Background(), Heating, Params{Setpoint: 21})

	assert.Equal(t, PersistentFailure, result)
	assert.Equal(t, 3, unit.Calls)
	assert.Len(t, *sleeps, 2)
	assert.Empty(t, unit.Commands)
}

func TestDispatcherTreatsDeadlineAsTransient(t *testing.T) {
	unit := &FakeUnit{Errors: []error{context.DeadlineExceeded}}
	d, _ := newTestDispatcher(unit, nil)

	assert.Equal(t, Acknowledged, d.Apply(context.Background(), Off, Params{}))
	assert.Equal(t, 2, unit.Calls)
}

func TestDispatcherDoesNotRetryPersistentErrors(t *testing.T) {
	unit := &FakeUnit{Err: errors.New("illegal data value")}
	d, sleeps := newTestDispatcher(unit, nil)

	err := d.send(context.Background(), Command{Kind: CommandRun, Value: 1})

	require.ErrorIs(t, err, ErrPersistentCommand)
	assert.Equal(t, 1, unit.Calls)
	assert.Empty(t, *sleeps)
}

func TestDispatcherStopsWhenContextCancelled(t *testing.T) {
	unit := &FakeUnit{Err: errTransient}
	d, _ := newTestDispatcher(unit, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, PersistentFailure, d.Apply(ctx, Idle, Params{}))
	assert.Equal(t, 1, unit.Calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errTransient))
	assert.True(t, IsTransient(fmt.Errorf("write: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(errors.New("exception")))
	assert.False(t, IsTransient(nil))
}
