package climate

import (
	"context"
	"sync"
)

// FakeUnit records commands for test assertions.
type FakeUnit struct {
	mu sync.Mutex

	// Commands contains every command that was acknowledged.
	Commands []Command

	// Errors, if non-empty, are returned by successive SendCommand calls
	// before falling back to Err.
	Errors []error

	// Err, if set, is returned by every SendCommand call once Errors is
	// drained.
	Err error

	// Calls counts SendCommand invocations, successful or not.
	Calls int
}

func (f *FakeUnit) SendCommand(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++

	if len(f.Errors) > 0 {
		err := f.Errors[0]
		f.Errors = f.Errors[1:]
		if err != nil {
			return err
		}
	} else if f.Err != nil {
		return f.Err
	}

	f.Commands = append(f.Commands, cmd)
	return nil
}

// Last returns the most recent acknowledged command of the given kind.
func (f *FakeUnit) Last(kind CommandKind) (Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.Commands) - 1; i >= 0; i-- {
		if f.Commands[i].Kind == kind {
			return f.Commands[i], true
		}
	}
	return Command{}, false
}

// Reset clears recorded commands and errors.
func (f *FakeUnit) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Commands = nil
	f.Errors = nil
	f.Err = nil
	f.Calls = 0
}

// FakeReporter records every reported status.
type FakeReporter struct {
	mu       sync.Mutex
	Statuses []Status
}

func (f *FakeReporter) ReportState(status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Statuses = append(f.Statuses, status)
}

// Last returns the most recent status and whether any was reported.
func (f *FakeReporter) Last() (Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Statuses) == 0 {
		return Status{}, false
	}
	return f.Statuses[len(f.Statuses)-1], true
}
