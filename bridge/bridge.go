package bridge

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/victorjacobs/go-nilan/climate"
	"github.com/victorjacobs/go-nilan/config"
	"github.com/victorjacobs/go-nilan/homeassistant"
	"github.com/victorjacobs/go-nilan/logging"
	"github.com/victorjacobs/go-nilan/nilan"
)

// Unit is the part of the Nilan client the bridge reads from.
type Unit interface {
	GetDeviceInfo(ctx context.Context) (*nilan.DeviceInfo, error)
	GetStatus(ctx context.Context) (*nilan.Status, error)
}

// Controller accepts events for the arbitration loop. TrySubmit must not
// block: it runs on the MQTT client's delivery goroutine.
type Controller interface {
	TrySubmit(ev climate.Event) error
}

// Bridge connects MQTT (sensors and the Home Assistant climate entity) to
// the controller, and publishes the unit's own sensors.
type Bridge struct {
	cfg           *config.Configuration
	mqtt          mqtt.Client
	homeAssistant *homeassistant.Client
	topics        homeassistant.ClimateTopics
	unit          Unit
	log           *logging.Logger
	now           func() time.Time

	mutex    sync.Mutex
	last     climate.Status
	reported bool
}

func New(cfg *config.Configuration, mqttClient mqtt.Client, unit Unit, log *logging.Logger) *Bridge {
	return &Bridge{
		cfg:           cfg,
		mqtt:          mqttClient,
		homeAssistant: homeassistant.NewClient(mqttClient, &cfg.Mqtt),
		topics:        homeassistant.NewClimateTopics(&cfg.Mqtt),
		unit:          unit,
		log:           log.Named("bridge"),
		now:           time.Now,
	}
}

// Describe reads the unit's identification and announces its software
// version with the discovery configs registered afterwards.
func (b *Bridge) Describe(ctx context.Context) (*nilan.DeviceInfo, error) {
	info, err := b.unit.GetDeviceInfo(ctx)
	if err != nil {
		return nil, err
	}

	b.homeAssistant.SetSoftwareVersion(info.Version)
	b.log.Infow("Connected to Nilan unit", "version", info.Version, "bus_version", info.BusVersion)

	return info, nil
}

func (b *Bridge) RegisterClimate() error {
	return b.homeAssistant.RegisterClimate(b.cfg.Controller.MinSetpoint, b.cfg.Controller.MaxSetpoint)
}

func (b *Bridge) RegisterSensors() error {
	for _, sensorConfig := range sensorDefinitions {
		if stateTopic, err := b.homeAssistant.RegisterSensor(sensorConfig.name, sensorConfig.class, sensorConfig.unit); err != nil {
			return err
		} else {
			b.log.Debugw("Registered sensor", "name", sensorConfig.name)
			sensorConfig.stateTopic = stateTopic
		}
	}

	return nil
}

// Subscribe wires the sensor and command topics to ctrl. It is called from
// the MQTT connect handler, so it also republishes the last status to undo
// the broker's will message after a reconnect.
func (b *Bridge) Subscribe(ctrl Controller) error {
	subscriptions := map[string]mqtt.MessageHandler{
		b.cfg.Sensors.CurrentTempTopic: b.onCurrentTemperature(ctrl),
		b.topics.ModeCommand:           b.onModeCommand(ctrl),
		b.topics.TemperatureCommand:    b.onTemperatureCommand(ctrl),
		b.topics.FanModeCommand:        b.onFanModeCommand(ctrl),
	}
	if b.cfg.Sensors.TargetTempTopic != "" {
		subscriptions[b.cfg.Sensors.TargetTempTopic] = b.onTargetTemperature(ctrl)
	}

	for topic, handler := range subscriptions {
		if t := b.mqtt.Subscribe(topic, 0, handler); t.Wait() && t.Error() != nil {
			return fmt.Errorf("subscribe %v: %w", topic, t.Error())
		}
	}

	b.mutex.Lock()
	last, reported := b.last, b.reported
	b.mutex.Unlock()

	if reported {
		b.ReportState(last)
	}

	return nil
}

func (b *Bridge) onCurrentTemperature(ctrl Controller) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		r, err := parseReading(msg.Payload(), b.now())
		if err != nil {
			b.log.Warnw("Ignoring sensor message", "topic", msg.Topic(), "err", err)
			return
		}

		b.submit(ctrl, climate.MeasurementEvent(r.Value, r.At))
	}
}

func (b *Bridge) onTargetTemperature(ctrl Controller) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		now := b.now()

		r, err := parseReading(msg.Payload(), now)
		if err != nil {
			b.log.Warnw("Ignoring sensor message", "topic", msg.Topic(), "err", err)
			return
		}

		b.submit(ctrl, climate.SetpointEvent(r.Value, now))
	}
}

func (b *Bridge) onModeCommand(ctrl Controller) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		mode, err := climate.ParseMode(string(msg.Payload()))
		if err != nil {
			b.log.Warnw("Ignoring mode command", "err", err)
			return
		}

		b.submit(ctrl, climate.ModeEvent(mode, b.now()))
	}
}

func (b *Bridge) onTemperatureCommand(ctrl Controller) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		value, err := parseTemperature(msg.Payload())
		if err != nil {
			b.log.Warnw("Ignoring temperature command", "payload", string(msg.Payload()), "err", err)
			return
		}

		b.submit(ctrl, climate.SetpointEvent(value, b.now()))
	}
}

func (b *Bridge) onFanModeCommand(ctrl Controller) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		fanMode := string(msg.Payload())
		if !slices.Contains(homeassistant.FanModes(), fanMode) {
			b.log.Warnw("Ignoring fan mode command", "fan_mode", fanMode)
			return
		}

		b.submit(ctrl, climate.FanStepEvent(nilan.StepForFanMode(fanMode), b.now()))
	}
}

func (b *Bridge) submit(ctrl Controller, ev climate.Event) {
	if err := ctrl.TrySubmit(ev); err != nil {
		b.log.Warnw("Dropped controller event", "kind", ev.Kind, "err", err)
	}
}

// ReportState implements climate.Reporter.
func (b *Bridge) ReportState(status climate.Status) {
	b.mutex.Lock()
	b.last = status
	b.reported = true
	b.mutex.Unlock()

	availability := "online"
	if status.UnitFault {
		availability = "offline"
	}

	b.publish(b.topics.ModeState, status.Mode.String())
	b.publish(b.topics.Action, status.State.String())
	b.publish(b.topics.TemperatureState, fmt.Sprintf("%v", status.Setpoint))
	b.publish(b.topics.FanModeState, nilan.FanModeForStep(status.FanStep))
	if status.HasCurrent {
		b.publish(b.topics.CurrentTemperature, fmt.Sprintf("%v", status.Current))
	}
	b.publish(b.topics.Availability, availability)
}

// PollSensors reads the unit's status and publishes every sensor.
func (b *Bridge) PollSensors(ctx context.Context) error {
	status, err := b.unit.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	for _, sensorConfig := range sensorDefinitions {
		if sensorConfig.stateTopic == "" {
			continue
		}

		b.publish(sensorConfig.stateTopic, fmt.Sprintf("%v", sensorConfig.get(status)))
	}

	return nil
}

func (b *Bridge) publish(topic string, value string) {
	if t := b.mqtt.Publish(topic, 0, true, value); t.Wait() && t.Error() != nil {
		b.log.Warnw("MQTT publishing failed", "topic", topic, "err", t.Error())
	}
}
