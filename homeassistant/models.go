package homeassistant

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	SwVersion    string   `json:"sw_version,omitempty"`
}

type sensorConfiguration struct {
	UniqueId          string `json:"unique_id"`
	Name              string `json:"name"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateTopic        string `json:"state_topic"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	AvailabilityTopic string `json:"availability_topic"`
	Device            device `json:"device"`
}

type climateConfiguration struct {
	UniqueId                string   `json:"unique_id"`
	Name                    string   `json:"name"`
	ModeCommandTopic        string   `json:"mode_command_topic"`
	ModeStateTopic          string   `json:"mode_state_topic"`
	Modes                   []string `json:"modes"`
	TemperatureCommandTopic string   `json:"temperature_command_topic"`
	TemperatureStateTopic   string   `json:"temperature_state_topic"`
	CurrentTemperatureTopic string   `json:"current_temperature_topic"`
	ActionTopic             string   `json:"action_topic"`
	FanModeCommandTopic     string   `json:"fan_mode_command_topic"`
	FanModeStateTopic       string   `json:"fan_mode_state_topic"`
	FanModes                []string `json:"fan_modes"`
	AvailabilityTopic       string   `json:"availability_topic"`
	MinTemp                 float64  `json:"min_temp"`
	MaxTemp                 float64  `json:"max_temp"`
	TempStep                float64  `json:"temp_step"`
	TemperatureUnit         string   `json:"temperature_unit"`
	Device                  device   `json:"device"`
}
