package homeassistant

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/victorjacobs/go-nilan/config"
)

var (
	climateModes = []string{"off", "auto", "heat", "cool", "fan_only"}
	fanModes     = []string{"off", "low", "medium", "high"}
)

// FanModes lists the fan modes offered by the climate entity.
func FanModes() []string {
	return fanModes
}

// ClimateTopics are the topics of the climate entity.
type ClimateTopics struct {
	ModeCommand        string
	ModeState          string
	TemperatureCommand string
	TemperatureState   string
	CurrentTemperature string
	Action             string
	FanModeCommand     string
	FanModeState       string
	Availability       string
}

func NewClimateTopics(cfg *config.Mqtt) ClimateTopics {
	return ClimateTopics{
		ModeCommand:        cfg.Topic("climate", "mode", "cmd"),
		ModeState:          cfg.Topic("climate", "mode", "state"),
		TemperatureCommand: cfg.Topic("climate", "target", "cmd"),
		TemperatureState:   cfg.Topic("climate", "target", "state"),
		CurrentTemperature: cfg.Topic("climate", "current", "state"),
		Action:             cfg.Topic("climate", "action", "state"),
		FanModeCommand:     cfg.Topic("climate", "fan", "cmd"),
		FanModeState:       cfg.Topic("climate", "fan", "state"),
		Availability:       cfg.AvailabilityTopic(),
	}
}

type Client struct {
	mqtt mqtt.Client
	cfg  *config.Mqtt
	dev  device
}

func NewClient(mqtt mqtt.Client, cfg *config.Mqtt) *Client {
	return &Client{
		mqtt: mqtt,
		cfg:  cfg,
		dev: device{
			Identifiers:  []string{cfg.TopicPrefix},
			Name:         "Nilan",
			Manufacturer: "Nilan",
		},
	}
}

// SetSoftwareVersion is announced with every subsequent registration.
func (h *Client) SetSoftwareVersion(version string) {
	h.dev.SwVersion = version
}

func (h *Client) RegisterClimate(minTemp, maxTemp float64) error {
	configTopic, payload := h.climateConfig(minTemp, maxTemp)

	if t := h.mqtt.Publish(configTopic, 0, true, payload); t.Wait() && t.Error() != nil {
		return t.Error()
	}

	return nil
}

func (h *Client) RegisterSensor(name string, class string, unit string) (string, error) {
	configTopic, stateTopic, payload := h.sensorConfig(name, class, unit)

	if t := h.mqtt.Publish(configTopic, 0, true, payload); t.Wait() && t.Error() != nil {
		return "", t.Error()
	}

	return stateTopic, nil
}

func (h *Client) climateConfig(minTemp, maxTemp float64) (string, []byte) {
	topics := NewClimateTopics(h.cfg)
	uniqueId := h.cfg.TopicPrefix + "_climate"

	payload, _ := json.Marshal(climateConfiguration{
		UniqueId:                uniqueId,
		Name:                    "Nilan",
		ModeCommandTopic:        topics.ModeCommand,
		ModeStateTopic:          topics.ModeState,
		Modes:                   climateModes,
		TemperatureCommandTopic: topics.TemperatureCommand,
		TemperatureStateTopic:   topics.TemperatureState,
		CurrentTemperatureTopic: topics.CurrentTemperature,
		ActionTopic:             topics.Action,
		FanModeCommandTopic:     topics.FanModeCommand,
		FanModeStateTopic:       topics.FanModeState,
		FanModes:                fanModes,
		AvailabilityTopic:       topics.Availability,
		MinTemp:                 minTemp,
		MaxTemp:                 maxTemp,
		TempStep:                0.5,
		TemperatureUnit:         "C",
		Device:                  h.dev,
	})

	return fmt.Sprintf("%v/climate/%v/config", h.cfg.DiscoveryPrefix, h.cfg.TopicPrefix), payload
}

func (h *Client) sensorConfig(name string, class string, unit string) (string, string, []byte) {
	uniqueId := strings.Replace(strings.ToLower(name), " ", "_", -1)

	var stateTopic string
	if class == "" {
		stateTopic = h.cfg.Topic(uniqueId)
	} else {
		stateTopic = h.cfg.Topic(class, uniqueId)
	}

	payload, _ := json.Marshal(sensorConfiguration{
		UniqueId:          uniqueId,
		Name:              name,
		DeviceClass:       class,
		StateTopic:        stateTopic,
		UnitOfMeasurement: unit,
		AvailabilityTopic: h.cfg.AvailabilityTopic(),
		Device:            h.dev,
	})

	return fmt.Sprintf("%v/sensor/%v/config", h.cfg.DiscoveryPrefix, uniqueId), stateTopic, payload
}
