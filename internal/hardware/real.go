//go:build linux

package hardware

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// ADS1115 registers and timing.
const (
	adsRegConversion = 0x00
	adsRegConfig     = 0x01
	adsConvWait      = 9 * time.Millisecond // one conversion at 128 SPS
	buttonDebounce   = 50 * time.Millisecond
)

// RealGateway drives actual Raspberry Pi hardware.
type RealGateway struct {
	chip   *gpiocdev.Chip
	pump   *gpiocdev.Line
	level  *gpiocdev.Line
	led    *gpiocdev.Lines
	button *gpiocdev.Line

	bus     i2c.BusCloser
	adc     i2c.Dev
	channel int

	mu       sync.Mutex
	onButton func()
}

// NewRealGateway requests all GPIO lines and opens the I2C bus.
// The pump line starts low so the pump is off from the first instant.
func NewRealGateway(pins Pins, adc ADC) (*RealGateway, error) {
	if adc.Channel < 0 || adc.Channel > 3 {
		return nil, fmt.Errorf("adc channel %d out of range 0-3", adc.Channel)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	g := &RealGateway{channel: adc.Channel}

	name := pins.Chip
	if name == "" {
		name = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	g.chip = chip

	if g.pump, err = chip.RequestLine(pins.Pump, gpiocdev.AsOutput(0)); err != nil {
		g.Close()
		return nil, fmt.Errorf("request pump pin %d: %w", pins.Pump, err)
	}

	// Float switch reads 1 when the reservoir is full.
	if g.level, err = chip.RequestLine(pins.WaterLevel, gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		g.Close()
		return nil, fmt.Errorf("request water level pin %d: %w", pins.WaterLevel, err)
	}

	if g.led, err = chip.RequestLines([]int{pins.LEDRed, pins.LEDGreen, pins.LEDBlue}, gpiocdev.AsOutput(0, 0, 0)); err != nil {
		g.Close()
		return nil, fmt.Errorf("request led pins: %w", err)
	}

	if g.button, err = chip.RequestLine(pins.Button,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithDebounce(buttonDebounce),
		gpiocdev.WithEventHandler(g.handleButton),
	); err != nil {
		g.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pins.Button, err)
	}

	bus, err := i2creg.Open(adc.Bus)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("open i2c bus %q: %w", adc.Bus, err)
	}
	g.bus = bus
	g.adc = i2c.Dev{Bus: bus, Addr: adc.Address}

	return g, nil
}

func (g *RealGateway) handleButton(gpiocdev.LineEvent) {
	g.mu.Lock()
	fn := g.onButton
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnButton registers the button press handler.
func (g *RealGateway) OnButton(fn func()) {
	g.mu.Lock()
	g.onButton = fn
	g.mu.Unlock()
}

// ReadMoisture runs one single-shot conversion and scales it to 12 bits.
func (g *RealGateway) ReadMoisture() (int, error) {
	// OS=start, MUX=AINx vs GND, PGA=±4.096V, MODE=single-shot, DR=128SPS, comparator off.
	cfg := uint16(0x8000 | (0x4+g.channel)<<12 | 0x1<<9 | 0x0100 | 0x4<<5 | 0x3)

	w := []byte{adsRegConfig, 0, 0}
	binary.BigEndian.PutUint16(w[1:], cfg)
	if err := g.adc.Tx(w, nil); err != nil {
		return 0, &SensorReadError{Sensor: SensorMoisture, Err: err}
	}

	time.Sleep(adsConvWait)

	r := make([]byte, 2)
	if err := g.adc.Tx([]byte{adsRegConversion}, r); err != nil {
		return 0, &SensorReadError{Sensor: SensorMoisture, Err: err}
	}
	return scaleADS1115(int16(binary.BigEndian.Uint16(r))), nil
}

// ReadWaterLevel reads the float switch.
func (g *RealGateway) ReadWaterLevel() (logic.WaterLevel, error) {
	v, err := g.level.Value()
	if err != nil {
		return logic.WaterUnknown, &SensorReadError{Sensor: SensorWaterLevel, Err: err}
	}
	if v == 1 {
		return logic.WaterFull, nil
	}
	return logic.WaterLow, nil
}

// SetPump drives the pump relay line.
func (g *RealGateway) SetPump(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := g.pump.SetValue(v); err != nil {
		return fmt.Errorf("set pump: %w", err)
	}
	return nil
}

// SetIndicator drives the RGB LED lines.
func (g *RealGateway) SetIndicator(c logic.Color) error {
	r, gr, b, err := rgb(c)
	if err != nil {
		return err
	}
	if err := g.led.SetValues([]int{r, gr, b}); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	return nil
}

// Close switches the pump and LED off and returns the pump line to input with
// pull-down (matching Pi boot defaults) before releasing everything.
func (g *RealGateway) Close() error {
	var errs []error

	if g.pump != nil {
		if err := g.pump.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("pump off: %w", err))
		}
		if err := g.pump.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pump pin: %w", err))
		}
		if err := g.pump.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pump pin: %w", err))
		}
	}
	if g.led != nil {
		if err := g.led.SetValues([]int{0, 0, 0}); err != nil {
			errs = append(errs, fmt.Errorf("led off: %w", err))
		}
		if err := g.led.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led pins: %w", err))
		}
	}
	if g.level != nil {
		if err := g.level.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close water level pin: %w", err))
		}
	}
	if g.button != nil {
		if err := g.button.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if g.bus != nil {
		if err := g.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
		}
	}

	return errors.Join(errs...)
}
