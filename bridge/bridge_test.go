package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-nilan/climate"
	"github.com/victorjacobs/go-nilan/config"
	"github.com/victorjacobs/go-nilan/homeassistant"
	"github.com/victorjacobs/go-nilan/logging"
	"github.com/victorjacobs/go-nilan/nilan"
)

type recordingController struct {
	mutex  sync.Mutex
	events []climate.Event
	err    error
}

func (r *recordingController) TrySubmit(ev climate.Event) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

type fakeUnit struct {
	info   *nilan.DeviceInfo
	status *nilan.Status
	err    error
}

func (f *fakeUnit) GetDeviceInfo(ctx context.Context) (*nilan.DeviceInfo, error) {
	return f.info, f.err
}

func (f *fakeUnit) GetStatus(ctx context.Context) (*nilan.Status, error) {
	return f.status, f.err
}

func newTestBridge(t *testing.T, unit Unit) (*Bridge, *homeassistant.FakeMqtt, *recordingController) {
	t.Helper()

	cfg := config.Default()
	cfg.Sensors.CurrentTempTopic = "zigbee/living/temperature"
	cfg.Sensors.TargetTempTopic = "zigbee/living/target"

	fake := homeassistant.NewFakeMqtt()
	b := New(cfg, fake, unit, logging.Nop())
	b.now = func() time.Time { return arrival }

	ctrl := &recordingController{}
	require.NoError(t, b.Subscribe(ctrl))

	return b, fake, ctrl
}

func TestSubscribeRoutesMessages(t *testing.T) {
	_, fake, ctrl := newTestBridge(t, &fakeUnit{})

	require.True(t, fake.Deliver("zigbee/living/temperature", `{"temperature": 20.5}`))
	require.True(t, fake.Deliver("zigbee/living/target", "22"))
	require.True(t, fake.Deliver("nilan/climate/mode/cmd", "heat"))
	require.True(t, fake.Deliver("nilan/climate/target/cmd", "21.5"))
	require.True(t, fake.Deliver("nilan/climate/fan/cmd", "high"))

	assert.Equal(t, []climate.Event{
		climate.MeasurementEvent(20.5, arrival),
		climate.SetpointEvent(22, arrival),
		climate.ModeEvent(climate.ModeHeat, arrival),
		climate.SetpointEvent(21.5, arrival),
		climate.FanStepEvent(4, arrival),
	}, ctrl.events)
}

func TestSubscribeIgnoresGarbage(t *testing.T) {
	_, fake, ctrl := newTestBridge(t, &fakeUnit{})

	fake.Deliver("zigbee/living/temperature", "unavailable")
	fake.Deliver("nilan/climate/mode/cmd", "dry")
	fake.Deliver("nilan/climate/target/cmd", "warm")
	fake.Deliver("nilan/climate/fan/cmd", "turbo")

	assert.Empty(t, ctrl.events)
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors.CurrentTempTopic = "room/temp"

	fake := homeassistant.NewFakeMqtt()
	b := New(cfg, fake, &fakeUnit{}, logging.Nop())

	// Not running, so nothing drains the queue.
	ctrlCfg := climate.DefaultConfig()
	ctrlCfg.QueueSize = 1
	ctrl := climate.NewController(ctrlCfg, &climate.FakeUnit{}, logging.Nop())
	require.NoError(t, b.Subscribe(ctrl))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			fake.Deliver("room/temp", "21")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message handler blocked on a full queue")
	}
}

func TestSubscribeWithoutTargetSensor(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors.CurrentTempTopic = "room/temp"

	fake := homeassistant.NewFakeMqtt()
	b := New(cfg, fake, &fakeUnit{}, logging.Nop())
	require.NoError(t, b.Subscribe(&recordingController{}))

	assert.True(t, fake.Subscribed("room/temp"))
	assert.False(t, fake.Subscribed(""))
}

func TestReportState(t *testing.T) {
	b, fake, _ := newTestBridge(t, &fakeUnit{})

	b.ReportState(climate.Status{
		Mode:       climate.ModeAuto,
		State:      climate.Heating,
		Setpoint:   21.5,
		Current:    19.75,
		HasCurrent: true,
		FanStep:    3,
	})

	expected := map[string]string{
		"nilan/climate/mode/state":    "auto",
		"nilan/climate/action/state":  "heating",
		"nilan/climate/target/state":  "21.5",
		"nilan/climate/current/state": "19.75",
		"nilan/climate/fan/state":     "medium",
		"nilan/availability":          "online",
	}
	for topic, payload := range expected {
		msg, ok := fake.Last(topic)
		require.True(t, ok, topic)
		assert.Equal(t, payload, msg.Payload, topic)
		assert.True(t, msg.Retained, topic)
	}
}

func TestReportStateFaultGoesOffline(t *testing.T) {
	b, fake, _ := newTestBridge(t, &fakeUnit{})

	b.ReportState(climate.Status{Mode: climate.ModeAuto, State: climate.Idle, UnitFault: true, SensorDegraded: true})

	msg, ok := fake.Last("nilan/availability")
	require.True(t, ok)
	assert.Equal(t, "offline", msg.Payload)

	_, ok = fake.Last("nilan/climate/current/state")
	assert.False(t, ok)
}

func TestSubscribeRepublishesLastState(t *testing.T) {
	b, fake, ctrl := newTestBridge(t, &fakeUnit{})
	b.ReportState(climate.Status{Mode: climate.ModeCool, State: climate.Cooling})

	fake.Publish("nilan/availability", 0, true, "offline")
	require.NoError(t, b.Subscribe(ctrl))

	msg, _ := fake.Last("nilan/availability")
	assert.Equal(t, "online", msg.Payload)
	msg, _ = fake.Last("nilan/climate/action/state")
	assert.Equal(t, "cooling", msg.Payload)
}

func TestPollSensors(t *testing.T) {
	unit := &fakeUnit{status: &nilan.Status{
		Control:      &nilan.ControlState{Running: true, OperationMode: "Auto", State: "Ventilation"},
		Settings:     &nilan.Settings{Running: true, OperationMode: "Auto", VentilationStep: 2, TargetTemp: 21},
		Temperatures: &nilan.Temperatures{Outdoor: -3.5, Room: 21.25, Humidity: 41.5, CO2: 650},
		ActiveAlarms: 1,
	}}
	b, fake, _ := newTestBridge(t, unit)

	require.NoError(t, b.RegisterSensors())
	require.NoError(t, b.PollSensors(context.Background()))

	expected := map[string]string{
		"nilan/temperature/nilan_outdoor_temperature": "-3.5",
		"nilan/temperature/nilan_room_temperature":    "21.25",
		"nilan/humidity/nilan_humidity":               "41.5",
		"nilan/carbon_dioxide/nilan_co2":              "650",
		"nilan/nilan_ventilation_step":                "2",
		"nilan/nilan_control_state":                   "Ventilation",
		"nilan/nilan_active_alarms":                   "1",
	}
	for topic, payload := range expected {
		msg, ok := fake.Last(topic)
		require.True(t, ok, topic)
		assert.Equal(t, payload, msg.Payload, topic)
	}
}

func TestPollSensorsError(t *testing.T) {
	b, _, _ := newTestBridge(t, &fakeUnit{err: nilan.ErrTimeout})

	err := b.PollSensors(context.Background())
	assert.ErrorIs(t, err, nilan.ErrTimeout)
}

func TestDescribe(t *testing.T) {
	b, fake, _ := newTestBridge(t, &fakeUnit{info: &nilan.DeviceInfo{BusVersion: 8, Version: "2.18"}})

	info, err := b.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.18", info.Version)

	require.NoError(t, b.RegisterClimate())
	msg, ok := fake.Last("homeassistant/climate/nilan/config")
	require.True(t, ok)
	assert.Contains(t, msg.Payload, `"sw_version":"2.18"`)
}

func TestDescribeError(t *testing.T) {
	b, _, _ := newTestBridge(t, &fakeUnit{err: errors.New("no adapter")})

	_, err := b.Describe(context.Background())
	assert.Error(t, err)
}
