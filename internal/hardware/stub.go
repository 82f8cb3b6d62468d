//go:build !linux

package hardware

import (
	"errors"

	"github.com/sweeney/plant-waterer/internal/logic"
)

var errUnsupported = errors.New("hardware: not supported on this platform (requires Linux)")

// RealGateway is not available on non-Linux platforms.
type RealGateway struct{}

// NewRealGateway returns an error on non-Linux platforms.
func NewRealGateway(Pins, ADC) (*RealGateway, error) {
	return nil, errUnsupported
}

func (g *RealGateway) ReadMoisture() (int, error) {
	return 0, &SensorReadError{Sensor: SensorMoisture, Err: errUnsupported}
}

func (g *RealGateway) ReadWaterLevel() (logic.WaterLevel, error) {
	return logic.WaterUnknown, &SensorReadError{Sensor: SensorWaterLevel, Err: errUnsupported}
}

func (g *RealGateway) SetPump(bool) error             { return errUnsupported }
func (g *RealGateway) SetIndicator(logic.Color) error { return errUnsupported }
func (g *RealGateway) OnButton(func())                {}
func (g *RealGateway) Close() error                   { return nil }
