package watering

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/state"
)

// DefaultDuration is how long the pump runs per automatic cycle.
const DefaultDuration = 3 * time.Second

// User log messages.
const (
	MsgPumpActivated = "threshold breach, pump activated"
	MsgCycleComplete = "watering cycle complete"
	MsgSufficient    = "moisture sufficient"
	MsgSuppressed    = "automatic check skipped after manual override"
	MsgTankLow       = "water tank low, watering skipped"
	MsgNoReading     = "no sensor reading yet"
	MsgPumpFault     = "pump fault, automatic watering halted"
	MsgManualStart   = "manual pump start"
	MsgManualStop    = "manual pump stop"
)

// Outcome is what a check boundary did.
type Outcome string

const (
	OutcomeWatered    Outcome = "watered"
	OutcomeSufficient Outcome = "sufficient"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeTankLow    Outcome = "tank_low"
	OutcomeNoReading  Outcome = "no_reading"
	OutcomeHalted     Outcome = "halted"
)

// Indicator shows a status colour.
type Indicator interface {
	Show(c logic.Color)
}

// Option configures a Controller.
type Option func(*Controller)

// WithWait replaces the interruptible sleep used between checks and during
// the watering hold.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.wait = wait }
}

// WithCycleIDs replaces the cycle ID generator.
func WithCycleIDs(next func() string) Option {
	return func(c *Controller) { c.nextID = next }
}

// WithIndicator sets the lamp used to signal a pump fault.
func WithIndicator(ind Indicator) Option {
	return func(c *Controller) { c.ind = ind }
}

// Controller is the Idle/Watering state machine.
type Controller struct {
	store    *state.Store
	pump     *Pump
	duration time.Duration
	ind      Indicator
	wait     func(ctx context.Context, d time.Duration) error
	nextID   func() string
	log      *zap.Logger
}

// NewController creates a Controller. A non-positive duration selects DefaultDuration.
func NewController(store *state.Store, pump *Pump, duration time.Duration, log *zap.Logger, opts ...Option) *Controller {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		store:    store,
		pump:     pump,
		duration: duration,
		wait:     sleep,
		nextID:   uuid.NewString,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run waits out the check interval and evaluates a check boundary, until ctx
// is cancelled or a pump fault halts automation. The interval is re-read
// before every wait so edits apply from the next boundary.
func (c *Controller) Run(ctx context.Context) error {
	for {
		interval := checkInterval(c.store.Snapshot().IntervalMinutes)
		if err := c.wait(ctx, interval); err != nil {
			return nil
		}
		out, err := c.Check(ctx)
		if errors.Is(err, ErrPumpFault) || out == OutcomeHalted {
			c.log.Error("automatic watering halted", zap.Error(err))
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// checkInterval converts minutes to a wait, clamped to
// [1, logic.MaxIntervalMinutes] minutes so the loop never spins.
func checkInterval(minutes int) time.Duration {
	switch {
	case minutes < 1:
		minutes = 1
	case minutes > logic.MaxIntervalMinutes:
		minutes = logic.MaxIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Check evaluates one check boundary. When watering it holds the pump on for
// the fixed duration and returns after the pump is off again.
func (c *Controller) Check(ctx context.Context) (Outcome, error) {
	snap := c.store.Snapshot()
	if snap.Halted {
		return OutcomeHalted, nil
	}
	if c.store.TakeSuppression() {
		c.store.AppendLog(MsgSuppressed)
		return OutcomeSuppressed, nil
	}

	decision := logic.Decide(logic.CheckInput{
		HasReading: snap.HasReading,
		Raw:        snap.MoistureRaw,
		Level:      snap.WaterLevel,
		Threshold:  snap.Threshold,
	})
	c.log.Debug("check boundary",
		zap.Stringer("decision", decision),
		zap.Int("percent", snap.MoisturePercent()),
		zap.Int("threshold", snap.Threshold))

	switch decision {
	case logic.DecideNoReading:
		c.store.AppendLog(MsgNoReading)
		return OutcomeNoReading, nil
	case logic.DecideSufficient:
		c.store.AppendLog(MsgSufficient)
		return OutcomeSufficient, nil
	case logic.DecideTankLow:
		c.store.AppendLog(MsgTankLow)
		return OutcomeTankLow, nil
	}
	return c.water(ctx)
}

func (c *Controller) water(ctx context.Context) (Outcome, error) {
	id := c.nextID()
	log := c.log.With(zap.String("cycle", id))

	c.store.SetWateringState(logic.WateringActive, "")
	if err := c.pump.startAuto(id, MsgPumpActivated); err != nil {
		c.fault(err)
		return OutcomeHalted, err
	}
	log.Info("watering started", zap.Duration("duration", c.duration))

	// The hold is time bounded; cancellation only shortens it.
	if err := c.wait(ctx, c.duration); err != nil {
		log.Info("watering hold interrupted", zap.Error(err))
	}

	if _, err := c.pump.EndAuto(id); err != nil {
		c.fault(err)
		return OutcomeHalted, err
	}
	c.store.SetWateringState(logic.WateringIdle, MsgCycleComplete)
	log.Info("watering cycle complete")
	return OutcomeWatered, nil
}

// Manual switches the pump on request of the user and suppresses the next
// automatic check.
func (c *Controller) Manual(on bool) error {
	c.store.SuppressNextCheck()
	msg := MsgManualStop
	if on {
		msg = MsgManualStart
	}
	if err := c.pump.setLogged(on, logic.PumpSourceManual, msg); err != nil {
		c.fault(err)
		return err
	}
	return nil
}

func (c *Controller) fault(err error) {
	c.log.Error("pump fault", zap.Error(err))
	if c.ind != nil {
		c.ind.Show(logic.ColorRed)
	}
	c.store.SetHalted(true)
	c.store.SetWateringState(logic.WateringIdle, MsgPumpFault)
}
