package bridge

import "github.com/victorjacobs/go-nilan/nilan"

var sensorDefinitions = [...]*sensorConfiguration{
	{
		name:  "Nilan Outdoor Temperature",
		class: "temperature",
		unit:  "°C",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.Outdoor },
	},
	{
		name:  "Nilan Intake Temperature",
		class: "temperature",
		unit:  "°C",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.Intake },
	},
	{
		name:  "Nilan Supply Temperature",
		class: "temperature",
		unit:  "°C",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.Supply },
	},
	{
		name:  "Nilan Exhaust Temperature",
		class: "temperature",
		unit:  "°C",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.Exhaust },
	},
	{
		name:  "Nilan Room Temperature",
		class: "temperature",
		unit:  "°C",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.Room },
	},
	{
		name:  "Nilan Humidity",
		class: "humidity",
		unit:  "%",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.Humidity },
	},
	{
		name:  "Nilan CO2",
		class: "carbon_dioxide",
		unit:  "ppm",
		get:   func(status *nilan.Status) interface{} { return status.Temperatures.CO2 },
	},
	{
		name: "Nilan Ventilation Step",
		get:  func(status *nilan.Status) interface{} { return status.Settings.VentilationStep },
	},
	{
		name: "Nilan Operation Mode",
		get:  func(status *nilan.Status) interface{} { return status.Control.OperationMode },
	},
	{
		name: "Nilan Control State",
		get:  func(status *nilan.Status) interface{} { return status.Control.State },
	},
	{
		name: "Nilan Active Alarms",
		get:  func(status *nilan.Status) interface{} { return status.ActiveAlarms },
	},
}
