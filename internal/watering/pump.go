// Package watering runs the automatic check loop and owns the pump actuator.
package watering

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/state"
)

// ErrPumpFault is returned when the pump output could not be driven.
// The pump has been forced off by the time a caller sees it.
var ErrPumpFault = errors.New("pump fault")

// Actuator drives the pump relay.
type Actuator interface {
	SetPump(on bool) error
}

// Notifier receives pump transitions. Publishing failures are logged only.
type Notifier interface {
	Publish(event logic.PumpEvent) error
}

// Pump serialises every pump command. The hardware write, the shared state
// write and the event are done under one lock, so the last caller to acquire
// it decides the final pump state, source and relay position.
type Pump struct {
	mu    sync.Mutex
	store *state.Store
	act   Actuator
	pub   Notifier
	now   func() time.Time
	log   *zap.Logger
}

// NewPump creates a Pump. pub may be nil.
func NewPump(store *state.Store, act Actuator, pub Notifier, log *zap.Logger) *Pump {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pump{store: store, act: act, pub: pub, now: time.Now, log: log}
}

// Set switches the pump on behalf of source.
func (p *Pump) Set(on bool, source logic.PumpSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(on, source, "", "")
}

// setLogged is Set with a user log message recorded alongside the state change.
func (p *Pump) setLogged(on bool, source logic.PumpSource, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(on, source, "", msg)
}

// startAuto switches the pump on for an automatic cycle and logs msg with it.
func (p *Pump) startAuto(cycleID, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(true, logic.PumpSourceAuto, cycleID, msg)
}

// EndAuto switches the pump off if it is still running for the automatic
// cycle. A manual command issued during the cycle takes precedence and is left
// alone. It reports whether the pump was switched off.
func (p *Pump) EndAuto(cycleID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.store.Snapshot()
	if !snap.PumpOn || snap.PumpSource != logic.PumpSourceAuto {
		return false, nil
	}
	if err := p.setLocked(false, logic.PumpSourceAuto, cycleID, ""); err != nil {
		return false, err
	}
	return true, nil
}

// ForceOff switches the pump off regardless of owner. Used on shutdown.
func (p *Pump) ForceOff() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.store.Snapshot()
	source := snap.PumpSource
	if source == logic.PumpSourceNone {
		source = logic.PumpSourceAuto
	}
	err := p.act.SetPump(false)
	p.store.RequestPump(false, source, "")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPumpFault, err)
	}
	if snap.PumpOn {
		p.notify(false, source, "")
	}
	return nil
}

func (p *Pump) setLocked(on bool, source logic.PumpSource, cycleID, msg string) error {
	wasOn := p.store.Snapshot().PumpOn
	if err := p.act.SetPump(on); err != nil {
		p.log.Error("pump write failed, forcing off", zap.Bool("requested", on), zap.Error(err))
		if offErr := p.act.SetPump(false); offErr != nil {
			p.log.Error("pump force off failed", zap.Error(offErr))
		}
		p.store.RequestPump(false, source, "")
		if wasOn {
			p.notify(false, source, cycleID)
		}
		return fmt.Errorf("%w: %v", ErrPumpFault, err)
	}
	p.store.RequestPump(on, source, msg)
	if on != wasOn {
		p.notify(on, source, cycleID)
	}
	return nil
}

func (p *Pump) notify(on bool, source logic.PumpSource, cycleID string) {
	if p.pub == nil {
		return
	}
	snap := p.store.Snapshot()
	ev := logic.PumpEvent{
		Timestamp:       p.now(),
		Type:            logic.EventPumpOff,
		Source:          source,
		MoisturePercent: snap.MoisturePercent(),
		HasReading:      snap.HasReading,
		CycleID:         cycleID,
	}
	if on {
		ev.Type = logic.EventPumpOn
	}
	if err := p.pub.Publish(ev); err != nil {
		p.log.Warn("publish pump event failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}
