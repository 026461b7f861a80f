package homeassistant

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-nilan/config"
)

func testMqttConfig() *config.Mqtt {
	return &config.Mqtt{TopicPrefix: "nilan", DiscoveryPrefix: "homeassistant"}
}

func TestRegisterClimate(t *testing.T) {
	fake := NewFakeMqtt()
	client := NewClient(fake, testMqttConfig())
	client.SetSoftwareVersion("2.18")

	require.NoError(t, client.RegisterClimate(5, 30))

	msg, ok := fake.Last("homeassistant/climate/nilan/config")
	require.True(t, ok)
	assert.True(t, msg.Retained)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))

	assert.Equal(t, "nilan/climate/mode/cmd", payload["mode_command_topic"])
	assert.Equal(t, "nilan/climate/action/state", payload["action_topic"])
	assert.Equal(t, "nilan/availability", payload["availability_topic"])
	assert.Equal(t, []interface{}{"off", "auto", "heat", "cool", "fan_only"}, payload["modes"])
	assert.Equal(t, []interface{}{"off", "low", "medium", "high"}, payload["fan_modes"])
	assert.InDelta(t, 5.0, payload["min_temp"], 1e-9)
	assert.InDelta(t, 30.0, payload["max_temp"], 1e-9)
	assert.Equal(t, "2.18", payload["device"].(map[string]interface{})["sw_version"])
}

func TestRegisterSensor(t *testing.T) {
	fake := NewFakeMqtt()
	client := NewClient(fake, testMqttConfig())

	stateTopic, err := client.RegisterSensor("Nilan Outdoor Temperature", "temperature", "°C")
	require.NoError(t, err)
	assert.Equal(t, "nilan/temperature/nilan_outdoor_temperature", stateTopic)

	msg, ok := fake.Last("homeassistant/sensor/nilan_outdoor_temperature/config")
	require.True(t, ok)

	var payload sensorConfiguration
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, stateTopic, payload.StateTopic)
	assert.Equal(t, "°C", payload.UnitOfMeasurement)
}

func TestRegisterSensorWithoutClass(t *testing.T) {
	client := NewClient(NewFakeMqtt(), testMqttConfig())

	stateTopic, err := client.RegisterSensor("Nilan Active Alarms", "", "")
	require.NoError(t, err)
	assert.Equal(t, "nilan/nilan_active_alarms", stateTopic)
}

func TestRegisterPublishError(t *testing.T) {
	fake := NewFakeMqtt()
	fake.PublishError = errors.New("broker gone")
	client := NewClient(fake, testMqttConfig())

	assert.Error(t, client.RegisterClimate(5, 30))

	_, err := client.RegisterSensor("Nilan Humidity", "humidity", "%")
	assert.Error(t, err)
}
