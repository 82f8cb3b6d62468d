package hardware

import (
	"errors"
	"sync"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// FakeGateway is a test double that returns scripted readings and records
// every actuator write. Safe for concurrent use.
type FakeGateway struct {
	mu sync.Mutex

	moisture []int
	index    int
	level    logic.WaterLevel

	moistureErr  error
	levelErr     error
	pumpErr      error
	indicatorErr error

	onRead   func()
	onButton func()

	pumpOn     bool
	pumps      []bool
	indicators []logic.Color
	reads      int
	closed     bool
}

// NewFakeGateway creates a FakeGateway with the given moisture samples and a full tank.
// Each ReadMoisture consumes the next sample; the last one repeats.
func NewFakeGateway(moisture ...int) *FakeGateway {
	return &FakeGateway{moisture: moisture, level: logic.WaterFull}
}

// SetMoisture replaces the scripted moisture samples.
func (f *FakeGateway) SetMoisture(samples ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moisture = samples
	f.index = 0
}

// SetLevel sets the float switch state.
func (f *FakeGateway) SetLevel(l logic.WaterLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = l
}

// SetMoistureError makes ReadMoisture fail with err (nil clears it).
func (f *FakeGateway) SetMoistureError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moistureErr = err
}

// SetLevelError makes ReadWaterLevel fail with err (nil clears it).
func (f *FakeGateway) SetLevelError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levelErr = err
}

// SetPumpError makes SetPump fail with err (nil clears it).
func (f *FakeGateway) SetPumpError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pumpErr = err
}

// SetIndicatorError makes SetIndicator fail with err (nil clears it).
func (f *FakeGateway) SetIndicatorError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indicatorErr = err
}

// OnRead registers fn to run at the start of every sensor read.
func (f *FakeGateway) OnRead(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRead = fn
}

func (f *FakeGateway) readHook() {
	f.mu.Lock()
	fn := f.onRead
	f.reads++
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ReadMoisture returns the next scripted sample.
func (f *FakeGateway) ReadMoisture() (int, error) {
	f.readHook()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moistureErr != nil {
		return 0, &SensorReadError{Sensor: SensorMoisture, Err: f.moistureErr}
	}
	if len(f.moisture) == 0 {
		return 0, &SensorReadError{Sensor: SensorMoisture, Err: errors.New("no samples configured")}
	}
	v := f.moisture[f.index]
	if f.index < len(f.moisture)-1 {
		f.index++
	}
	return v, nil
}

// ReadWaterLevel returns the configured float switch state.
func (f *FakeGateway) ReadWaterLevel() (logic.WaterLevel, error) {
	f.readHook()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levelErr != nil {
		return logic.WaterUnknown, &SensorReadError{Sensor: SensorWaterLevel, Err: f.levelErr}
	}
	return f.level, nil
}

// SetPump records the write. A configured pump error fails only switch-on
// writes; switching off always succeeds.
func (f *FakeGateway) SetPump(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pumpErr != nil && on {
		return f.pumpErr
	}
	f.pumpOn = on
	f.pumps = append(f.pumps, on)
	return nil
}

// SetIndicator records the colour.
func (f *FakeGateway) SetIndicator(c logic.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indicatorErr != nil {
		return f.indicatorErr
	}
	if _, _, _, err := rgb(c); err != nil {
		return err
	}
	f.indicators = append(f.indicators, c)
	return nil
}

// OnButton registers the button press handler.
func (f *FakeGateway) OnButton(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onButton = fn
}

// PressButton simulates a debounced button press.
func (f *FakeGateway) PressButton() {
	f.mu.Lock()
	fn := f.onButton
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Close switches the pump off and marks the gateway closed.
func (f *FakeGateway) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pumpOn {
		f.pumps = append(f.pumps, false)
	}
	f.pumpOn = false
	f.closed = true
	return nil
}

// PumpOn reports the current relay state.
func (f *FakeGateway) PumpOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pumpOn
}

// PumpWrites returns every successful pump write in order.
func (f *FakeGateway) PumpWrites() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.pumps...)
}

// Indicators returns every colour shown in order.
func (f *FakeGateway) Indicators() []logic.Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Color(nil), f.indicators...)
}

// Reads returns the number of sensor reads performed.
func (f *FakeGateway) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Closed reports whether Close was called.
func (f *FakeGateway) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
