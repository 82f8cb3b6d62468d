// Package hardware abstracts the controller's peripherals: the soil moisture
// ADC, the reservoir float switch, the pump relay, the RGB status LED and the
// reset button.
// The real implementation uses the Linux GPIO character device and an ADS1115
// on I2C. The fake implementation allows testing without hardware.
package hardware

import (
	"fmt"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// Gateway is the single owner of the peripherals.
type Gateway interface {
	// ReadMoisture returns a raw reading in [0, 4095].
	ReadMoisture() (int, error)

	// ReadWaterLevel returns the float switch state. The raw line reads 1 when full.
	ReadWaterLevel() (logic.WaterLevel, error)

	// SetPump drives the pump relay.
	SetPump(on bool) error

	// SetIndicator drives the RGB LED.
	SetIndicator(c logic.Color) error

	// OnButton registers fn to run on each debounced button press.
	OnButton(fn func())

	// Close switches the pump off and releases hardware resources.
	Close() error
}

// Pins holds BCM line offsets on Chip.
type Pins struct {
	Chip       string // empty selects gpiochip0
	Pump       int
	WaterLevel int
	LEDRed     int
	LEDGreen   int
	LEDBlue    int
	Button     int
}

// DefaultPins matches the reference wiring.
var DefaultPins = Pins{
	Chip:       "gpiochip0",
	Pump:       15,
	WaterLevel: 14,
	LEDRed:     13,
	LEDGreen:   25,
	LEDBlue:    24,
	Button:     12,
}

// ADC describes the ADS1115 converter carrying the moisture probe.
type ADC struct {
	Bus     string // empty selects the first available bus
	Address uint16
	Channel int
}

// DefaultADC is an ADS1115 at its default address, probe on AIN0.
var DefaultADC = ADC{Address: 0x48, Channel: 0}

// Sensor names used in SensorReadError.
const (
	SensorMoisture   = "moisture"
	SensorWaterLevel = "water_level"
)

// SensorReadError reports a failed peripheral read.
type SensorReadError struct {
	Sensor string
	Err    error
}

func (e *SensorReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Sensor, e.Err)
}

func (e *SensorReadError) Unwrap() error {
	return e.Err
}

// rgb maps a colour to red/green/blue line values.
func rgb(c logic.Color) (r, g, b int, err error) {
	switch c {
	case logic.ColorOff:
		return 0, 0, 0, nil
	case logic.ColorRed:
		return 1, 0, 0, nil
	case logic.ColorGreen:
		return 0, 1, 0, nil
	case logic.ColorBlue:
		return 0, 0, 1, nil
	default:
		return 0, 0, 0, fmt.Errorf("unknown indicator colour %q", c)
	}
}

// scaleADS1115 converts a signed 16-bit conversion result to the 12-bit range.
func scaleADS1115(v int16) int {
	if v < 0 {
		return 0
	}
	raw := int(v) >> 3
	if raw > logic.MoistureRawMax {
		raw = logic.MoistureRawMax
	}
	return raw
}
