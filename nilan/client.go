package nilan

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/victorjacobs/go-nilan/climate"
	"go.bug.st/serial"
)

// Holding registers written by the controller.
const (
	RegisterRunSet  uint16 = 1001
	RegisterModeSet uint16 = 1002
	RegisterVentSet uint16 = 1003
	RegisterTempSet uint16 = 1004
)

const (
	defaultTimeout  = 2 * time.Second
	defaultFrameGap = 100 * time.Millisecond
)

type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

func openSerial(name string, mode *serial.Mode) (port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Client speaks Modbus RTU to a Nilan unit. The port is opened for every
// transaction so a replugged adapter is picked up without a restart.
type Client struct {
	serialPort string
	address    byte
	mode       *serial.Mode
	timeout    time.Duration
	frameGap   time.Duration
	open       func(name string, mode *serial.Mode) (port, error)

	mutex    sync.Mutex
	lastSent time.Time
}

func NewClient(serialPort string, address uint8) (*Client, error) {
	if serialPort == "" {
		return nil, fmt.Errorf("nilan: no serial port configured")
	}

	return &Client{
		serialPort: serialPort,
		address:    address,
		mode: &serial.Mode{
			BaudRate: 19200,
			DataBits: 8,
			Parity:   serial.EvenParity,
			StopBits: serial.OneStopBit,
		},
		timeout:  defaultTimeout,
		frameGap: defaultFrameGap,
		open:     openSerial,
	}, nil
}

// SendCommand implements climate.UnitClient.
func (c *Client) SendCommand(ctx context.Context, cmd climate.Command) error {
	var register uint16
	switch cmd.Kind {
	case climate.CommandRun:
		register = RegisterRunSet
	case climate.CommandOperationMode:
		register = RegisterModeSet
	case climate.CommandFanStep:
		register = RegisterVentSet
	case climate.CommandTargetTemperature:
		register = RegisterTempSet
	default:
		return fmt.Errorf("nilan: unsupported command %v", cmd)
	}

	return c.WriteRegister(ctx, register, cmd.Value)
}

func (c *Client) WriteRegister(ctx context.Context, register, value uint16) error {
	response, err := c.transact(ctx, packWrite(c.address, register, value), cmdWriteMultipleRegs, 1)
	if err != nil {
		return fmt.Errorf("write %d=%d: %w", register, value, err)
	}

	if get16(response, 0) != register {
		return fmt.Errorf("write %d=%d: %w: echoed register %d", register, value, ErrMalformed, get16(response, 0))
	}

	return nil
}

func (c *Client) readRegisters(ctx context.Context, function byte, start, count uint16) ([]byte, error) {
	response, err := c.transact(ctx, packRead(c.address, function, start, count), function, count)
	if err != nil {
		return nil, fmt.Errorf("read %d+%d: %w", start, count, err)
	}

	if len(response) != 2*int(count) {
		return nil, fmt.Errorf("read %d+%d: %w: %d bytes", start, count, ErrMalformed, len(response))
	}

	return response, nil
}

func (c *Client) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	data, err := c.readRegisters(ctx, cmdReadInputRegisters, 0, 4)
	if err != nil {
		return nil, err
	}

	busVersion := int(get16(data, 0))

	var version string
	// Older units with bus version 8 store the version byte-swapped
	if busVersion == 8 {
		version = string([]byte{data[3], data[2], data[5], data[4], data[7], data[6]})
	} else {
		version = fmt.Sprintf("%c%c.%c%c.%c%c", data[2], data[3], data[4], data[5], data[6], data[7])
	}

	return &DeviceInfo{BusVersion: busVersion, Version: version}, nil
}

func (c *Client) GetControlState(ctx context.Context) (*ControlState, error) {
	data, err := c.readRegisters(ctx, cmdReadInputRegisters, 1000, 4)
	if err != nil {
		return nil, err
	}

	return &ControlState{
		Running:       get16(data, 0) != 0,
		OperationMode: operationModeName(get16(data, 2)),
		State:         controlStateName(get16(data, 4)),
	}, nil
}

func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	data, err := c.readRegisters(ctx, cmdReadHoldingRegisters, 1000, 5)
	if err != nil {
		return nil, err
	}

	return &Settings{
		Running:         get16(data, 2) != 0,
		OperationMode:   operationModeName(get16(data, 4)),
		VentilationStep: int(get16(data, 6)),
		TargetTemp:      scaleHundredths(get16(data, 8)),
	}, nil
}

func (c *Client) GetTemperatures(ctx context.Context) (*Temperatures, error) {
	data, err := c.readRegisters(ctx, cmdReadInputRegisters, 200, 23)
	if err != nil {
		return nil, err
	}

	t := func(index int) float64 {
		return scaleHundredths(get16(data, 2*index))
	}

	return &Temperatures{
		Controller: t(0),
		Intake:     t(1),
		Inlet:      t(2),
		Exhaust:    t(3),
		Outlet:     t(4),
		Condenser:  t(5),
		Evaporator: t(6),
		Supply:     t(7),
		Outdoor:    t(8),
		Room:       t(15),
		Humidity:   scaleHundredths(get16(data, 42)),
		CO2:        int(get16(data, 44)),
	}, nil
}

func (c *Client) GetActiveAlarms(ctx context.Context) (int, error) {
	data, err := c.readRegisters(ctx, cmdReadInputRegisters, 400, 10)
	if err != nil {
		return 0, err
	}

	return int(get16(data, 0)), nil
}

// GetStatus reads every block published as a sensor.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	control, err := c.GetControlState(ctx)
	if err != nil {
		return nil, err
	}

	settings, err := c.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	temperatures, err := c.GetTemperatures(ctx)
	if err != nil {
		return nil, err
	}

	alarms, err := c.GetActiveAlarms(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Control:      control,
		Settings:     settings,
		Temperatures: temperatures,
		ActiveAlarms: alarms,
	}, nil
}

func (c *Client) transact(ctx context.Context, request []byte, function byte, count uint16) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if wait := c.frameGap - time.Since(c.lastSent); wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := c.open(c.serialPort, c.mode)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", c.serialPort, err)
	}
	defer p.Close()

	if err := p.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input: %w", err)
	}

	n, err := p.Write(request)
	c.lastSent = time.Now()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if n != len(request) {
		return nil, fmt.Errorf("%w: wrote %d of %d bytes", ErrTimeout, n, len(request))
	}

	frame, err := c.readFrame(ctx, p, function, count)
	if err != nil {
		return nil, err
	}

	return parseResponse(c.address, function, frame)
}

func (c *Client) readFrame(ctx context.Context, p port, function byte, count uint16) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	want := expectedLength(function, count)
	frame := make([]byte, 0, want)
	chunk := make([]byte, 256)

	for len(frame) < want {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if err := p.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("set read timeout: %w", err)
		}

		n, err := p.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		// go.bug.st/serial returns 0 bytes when the read timeout expires
		if n == 0 {
			return nil, ErrTimeout
		}

		frame = append(frame, chunk[:n]...)
		if len(frame) >= 2 && frame[1]&exceptionBit != 0 {
			want = 5
		}
	}

	return frame[:want], nil
}
