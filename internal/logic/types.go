// Package logic contains pure business logic for the plant-watering controller.
// This package has NO external dependencies (no GPIO, radio, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// ADC range of the moisture sensor (12-bit).
const (
	MoistureRawMin = 0
	MoistureRawMax = 4095
)

// MaxIntervalMinutes caps the check interval at one week.
const MaxIntervalMinutes = 7 * 24 * 60

// WaterLevel is the reservoir float-switch state.
type WaterLevel string

const (
	WaterUnknown WaterLevel = "Unknown"
	WaterFull    WaterLevel = "Full"
	WaterLow     WaterLevel = "Low"
)

// WiFiMode is the radio operating mode.
type WiFiMode string

const (
	WiFiOff         WiFiMode = "Off"
	WiFiAccessPoint WiFiMode = "AccessPoint"
	WiFiStation     WiFiMode = "Station"
)

// Color is a status indicator colour.
type Color string

const (
	ColorOff   Color = "off"
	ColorGreen Color = "green" // normal operation
	ColorBlue  Color = "blue"  // last user input rejected
	ColorRed   Color = "red"   // fatal fault
)

// PumpSource records who last commanded the pump.
type PumpSource string

const (
	PumpSourceNone   PumpSource = ""
	PumpSourceAuto   PumpSource = "auto"
	PumpSourceManual PumpSource = "manual"
)

// WateringState is the watering controller state.
type WateringState string

const (
	WateringIdle   WateringState = "Idle"
	WateringActive WateringState = "Watering"
)

// Credentials are Wi-Fi station credentials captured during provisioning.
type Credentials struct {
	SSID     string
	Password string
}

// EventType is a pump transition published to subscribers.
type EventType string

const (
	EventPumpOn  EventType = "PUMP_ON"
	EventPumpOff EventType = "PUMP_OFF"
)

// PumpEvent is a pump transition with its context.
type PumpEvent struct {
	Timestamp       time.Time
	Type            EventType
	Source          PumpSource
	MoisturePercent int
	HasReading      bool
	CycleID         string // automatic cycles only
}
