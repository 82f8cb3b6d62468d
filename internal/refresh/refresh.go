// Package refresh periodically repopulates the shared sensor reading.
package refresh

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/hardware"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/radio"
	"github.com/sweeney/plant-waterer/internal/state"
	"github.com/sweeney/plant-waterer/internal/telemetry"
)

// DefaultPeriod is the refresh period.
const DefaultPeriod = 30 * time.Second

// Quieter runs fn with the radio suspended.
type Quieter interface {
	Quiet(ctx context.Context, fn func() error) error
}

// Sensors reads the two inputs.
type Sensors interface {
	ReadMoisture() (int, error)
	ReadWaterLevel() (logic.WaterLevel, error)
}

// Option configures a Task.
type Option func(*Task)

// WithTicks replaces the internal ticker with ticks.
func WithTicks(ticks <-chan time.Time) Option {
	return func(t *Task) { t.ticks = ticks }
}

// WithRecorder sends accepted readings to rec.
func WithRecorder(rec telemetry.Recorder) Option {
	return func(t *Task) { t.rec = rec }
}

// WithClock overrides the clock used for recorded readings.
func WithClock(now func() time.Time) Option {
	return func(t *Task) { t.now = now }
}

// Task reads both sensors inside a quiet window and stores the result.
type Task struct {
	quiet   Quieter
	sensors Sensors
	store   *state.Store
	period  time.Duration
	ticks   <-chan time.Time
	rec     telemetry.Recorder
	now     func() time.Time
	log     *zap.Logger
}

// New creates a Task. A non-positive period selects DefaultPeriod.
func New(quiet Quieter, sensors Sensors, store *state.Store, period time.Duration, log *zap.Logger, opts ...Option) *Task {
	if period <= 0 {
		period = DefaultPeriod
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Task{
		quiet:   quiet,
		sensors: sensors,
		store:   store,
		period:  period,
		rec:     telemetry.Nop{},
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run refreshes immediately, then once per period until ctx is done.
// A failed cycle never stops the task.
func (t *Task) Run(ctx context.Context) error {
	_ = t.Refresh(ctx)

	ticks := t.ticks
	if ticks == nil {
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			_ = t.Refresh(ctx)
		}
	}
}

// Refresh performs one cycle. On any failure the previous reading is kept and
// exactly one log entry is appended.
func (t *Task) Refresh(ctx context.Context) error {
	var (
		raw   int
		level logic.WaterLevel
	)
	err := t.quiet.Quiet(ctx, func() error {
		var err error
		if raw, err = t.sensors.ReadMoisture(); err != nil {
			return err
		}
		level, err = t.sensors.ReadWaterLevel()
		return err
	})
	if err == nil {
		err = t.store.UpdateSensor(raw, level)
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		t.store.AppendLog(failureMessage(err))
		t.log.Warn("sensor refresh failed", zap.Error(err))
		return err
	}

	percent := logic.MoisturePercent(raw)
	t.log.Debug("sensor refresh", zap.Int("raw", raw), zap.Int("percent", percent), zap.String("water_level", string(level)))
	t.rec.Record(telemetry.Reading{Time: t.now(), Raw: raw, Percent: percent, Level: level})
	return nil
}

func failureMessage(err error) string {
	var sre *hardware.SensorReadError
	var re *radio.RadioError
	switch {
	case errors.As(err, &sre):
		return "sensor read failed: " + sre.Sensor
	case errors.As(err, &re):
		return "sensor read failed: radio " + re.Op
	case errors.Is(err, state.ErrRawOutOfRange):
		return "sensor read failed: moisture out of range"
	default:
		return "sensor read failed"
	}
}
