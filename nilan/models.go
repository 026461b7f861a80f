package nilan

type DeviceInfo struct {
	BusVersion int
	Version    string
}

// ControlState is the live control block (input registers 1000-1003).
type ControlState struct {
	Running       bool
	OperationMode string
	State         string
}

// Settings are the user settings (holding registers 1000-1004).
type Settings struct {
	Running         bool
	OperationMode   string
	VentilationStep int
	TargetTemp      float64
}

type Temperatures struct {
	Controller float64 // T0
	Intake     float64 // T1
	Inlet      float64 // T2
	Exhaust    float64 // T3
	Outlet     float64 // T4
	Condenser  float64 // T5
	Evaporator float64 // T6
	Supply     float64 // T7
	Outdoor    float64 // T8
	Room       float64 // T15
	Humidity   float64
	CO2        int
}

type Status struct {
	Control      *ControlState
	Settings     *Settings
	Temperatures *Temperatures
	ActiveAlarms int
}

var operationModes = map[uint16]string{
	0: "Off",
	1: "Heat",
	2: "Cool",
	3: "Auto",
	4: "Service",
}

var controlStates = map[uint16]string{
	0:  "Off",
	1:  "Shift",
	2:  "Stop",
	3:  "Start",
	4:  "Standby",
	5:  "Ventilation stop",
	6:  "Ventilation",
	7:  "Heating",
	8:  "Cooling",
	9:  "Hot water",
	10: "Legionella",
	11: "Cooling + hot water",
	12: "Central heating",
	13: "Defrost",
}

func operationModeName(v uint16) string {
	if name, ok := operationModes[v]; ok {
		return name
	}
	return "Unknown"
}

func controlStateName(v uint16) string {
	if name, ok := controlStates[v]; ok {
		return name
	}
	return "Unknown"
}

// FanModeForStep maps a ventilation step to a Home Assistant fan mode.
func FanModeForStep(step int) string {
	switch step {
	case 1, 2:
		return "low"
	case 3:
		return "medium"
	case 4:
		return "high"
	default:
		return "off"
	}
}

// StepForFanMode is the inverse of FanModeForStep; unknown modes map to low.
func StepForFanMode(mode string) int {
	switch mode {
	case "off":
		return 0
	case "medium":
		return 3
	case "high":
		return 4
	default:
		return 2
	}
}
