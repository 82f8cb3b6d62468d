package watering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/hardware"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/mqtt"
	"github.com/sweeney/plant-waterer/internal/state"
)

var testNow = time.Date(2026, 5, 9, 6, 0, 0, 0, time.UTC)

type colors struct {
	mu    sync.Mutex
	shown []logic.Color
}

func (c *colors) Show(col logic.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, col)
}

func (c *colors) all() []logic.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]logic.Color(nil), c.shown...)
}

// waits records every requested wait and optionally runs a hook during it.
type waits struct {
	mu     sync.Mutex
	got    []time.Duration
	during func(d time.Duration)
}

func (w *waits) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.got = append(w.got, d)
	hook := w.during
	w.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (w *waits) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.got...)
}

type fixture struct {
	ctrl  *Controller
	pump  *Pump
	gw    *hardware.FakeGateway
	store *state.Store
	pub   *mqtt.FakePublisher
	lamp  *colors
	waits *waits
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gw:    hardware.NewFakeGateway(),
		store: state.NewStore(testNow, state.Defaults{Threshold: 50, IntervalMinutes: 10}, state.WithClock(func() time.Time { return testNow })),
		pub:   mqtt.NewFakePublisher(),
		lamp:  &colors{},
		waits: &waits{},
	}
	f.pump = NewPump(f.store, f.gw, f.pub, zap.NewNop())
	n := 0
	f.ctrl = NewController(f.store, f.pump, 3*time.Second, zap.NewNop(),
		WithWait(f.waits.wait),
		WithIndicator(f.lamp),
		WithCycleIDs(func() string { n++; return fmt.Sprintf("cycle-%d", n) }))
	return f
}

func messages(snap state.Snapshot) []string {
	out := make([]string, 0, len(snap.Log))
	for i := len(snap.Log) - 1; i >= 0; i-- {
		out = append(out, snap.Log[i].Message)
	}
	return out
}

func TestCheckWatersBelowThreshold(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(2000, logic.WaterFull)) // 48%

	f.waits.during = func(time.Duration) {
		snap := f.store.Snapshot()
		assert.Equal(t, logic.WateringActive, snap.Watering)
		assert.True(t, snap.PumpOn)
		assert.Equal(t, logic.PumpSourceAuto, snap.PumpSource)
	}

	out, err := f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWatered, out)

	snap := f.store.Snapshot()
	assert.Equal(t, logic.WateringIdle, snap.Watering)
	assert.False(t, snap.PumpOn)
	assert.Equal(t, []bool{true, false}, f.gw.PumpWrites())
	assert.Equal(t, []time.Duration{3 * time.Second}, f.waits.all())
	assert.Equal(t, []string{MsgPumpActivated, MsgCycleComplete}, messages(snap))

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, logic.EventPumpOn, events[0].Type)
	assert.Equal(t, logic.EventPumpOff, events[1].Type)
	assert.Equal(t, "cycle-1", events[0].CycleID)
	assert.Equal(t, "cycle-1", events[1].CycleID)
	assert.Equal(t, 48, events[0].MoisturePercent)
	assert.True(t, events[0].HasReading)
}

func TestCheckAtThresholdIsSufficient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateThreshold(48))
	require.NoError(t, f.store.UpdateSensor(2000, logic.WaterFull)) // exactly 48%

	out, err := f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSufficient, out)
	assert.Empty(t, f.gw.PumpWrites())
	assert.Equal(t, []string{MsgSufficient}, messages(f.store.Snapshot()))
}

func TestCheckSeesThresholdUpdate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(2000, logic.WaterFull))
	require.NoError(t, f.store.UpdateThreshold(40))

	out, err := f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSufficient, out)

	require.NoError(t, f.store.UpdateThreshold(50))
	out, err = f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWatered, out)
}

func TestCheckTankLow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(100, logic.WaterLow))

	out, err := f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTankLow, out)
	assert.Empty(t, f.gw.PumpWrites())
	assert.Equal(t, []string{MsgTankLow}, messages(f.store.Snapshot()))
}

func TestCheckNoReading(t *testing.T) {
	f := newFixture(t)

	out, err := f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoReading, out)
	assert.Empty(t, f.gw.PumpWrites())
	assert.Equal(t, []string{MsgNoReading}, messages(f.store.Snapshot()))
}

func TestManualSuppressesExactlyOneCheck(t *testing.T) {
	for _, on := range []bool{true, false} {
		t.Run(fmt.Sprintf("on=%v", on), func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.store.UpdateSensor(3500, logic.WaterFull))
			require.NoError(t, f.ctrl.Manual(on))

			snap := f.store.Snapshot()
			assert.Equal(t, on, snap.PumpOn)
			assert.Equal(t, logic.PumpSourceManual, snap.PumpSource)

			out, err := f.ctrl.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, OutcomeSuppressed, out)

			out, err = f.ctrl.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, OutcomeSufficient, out)
		})
	}
}

func TestManualDuringHoldKeepsManualState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(1000, logic.WaterFull))

	f.waits.during = func(time.Duration) {
		require.NoError(t, f.ctrl.Manual(true))
	}

	out, err := f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWatered, out)

	snap := f.store.Snapshot()
	assert.True(t, snap.PumpOn, "manual start must survive the end of the automatic cycle")
	assert.Equal(t, logic.PumpSourceManual, snap.PumpSource)
	assert.Equal(t, logic.WateringIdle, snap.Watering)
	assert.True(t, f.gw.PumpOn())
}

func TestCancelledHoldStillTurnsPumpOff(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(1000, logic.WaterFull))

	ctx, cancel := context.WithCancel(context.Background())
	f.waits.during = func(time.Duration) { cancel() }

	out, err := f.ctrl.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWatered, out)
	assert.False(t, f.gw.PumpOn())
	assert.False(t, f.store.Snapshot().PumpOn)
}

func TestPumpFaultHaltsAutomation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(1000, logic.WaterFull))
	f.gw.SetPumpError(errors.New("relay stuck"))

	out, err := f.ctrl.Check(context.Background())
	assert.ErrorIs(t, err, ErrPumpFault)
	assert.Equal(t, OutcomeHalted, out)

	snap := f.store.Snapshot()
	assert.True(t, snap.Halted)
	assert.False(t, snap.PumpOn)
	assert.False(t, f.gw.PumpOn())
	assert.Equal(t, logic.WateringIdle, snap.Watering)
	assert.Equal(t, []logic.Color{logic.ColorRed}, f.lamp.all())
	assert.Equal(t, MsgPumpFault, snap.Log[0].Message)

	f.gw.SetPumpError(nil)
	out, err = f.ctrl.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeHalted, out)
}

func TestManualFaultForcesOff(t *testing.T) {
	f := newFixture(t)
	f.gw.SetPumpError(errors.New("relay stuck"))

	err := f.ctrl.Manual(true)
	assert.ErrorIs(t, err, ErrPumpFault)
	assert.False(t, f.store.Snapshot().PumpOn)
	assert.True(t, f.store.Snapshot().Halted)
}

func TestRunUsesCurrentInterval(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(3500, logic.WaterFull))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	f.waits.during = func(time.Duration) {
		calls++
		switch calls {
		case 1:
			require.NoError(t, f.store.UpdateInterval(2))
		case 3:
			cancel()
		}
	}

	require.NoError(t, f.ctrl.Run(ctx))
	assert.Equal(t, []time.Duration{10 * time.Minute, 2 * time.Minute, 2 * time.Minute}, f.waits.all())
	assert.Equal(t, []string{MsgSufficient, MsgSufficient}, messages(f.store.Snapshot()))
}

func TestCheckIntervalIsClamped(t *testing.T) {
	assert.Equal(t, 10*time.Minute, checkInterval(10))
	assert.Equal(t, time.Minute, checkInterval(0))
	assert.Equal(t, time.Minute, checkInterval(-5))
	week := time.Duration(logic.MaxIntervalMinutes) * time.Minute
	assert.Equal(t, week, checkInterval(logic.MaxIntervalMinutes+1))
	assert.Equal(t, week, checkInterval(153722868))
}

func TestRunNeverWaitsNegative(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(3500, logic.WaterFull))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.waits.during = func(time.Duration) { cancel() }

	require.Error(t, f.store.UpdateInterval(153722868))
	require.NoError(t, f.ctrl.Run(ctx))
	waits := f.waits.all()
	require.Len(t, waits, 1)
	assert.Greater(t, waits[0], time.Duration(0))
}

func TestRunStopsOnPumpFault(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateSensor(1000, logic.WaterFull))
	f.gw.SetPumpError(errors.New("relay stuck"))

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a pump fault")
	}
	assert.True(t, f.store.Snapshot().Halted)
}

func TestConcurrentPumpWritesLastWriterWins(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(on bool) {
			defer wg.Done()
			_ = f.ctrl.Manual(on)
		}(i%2 == 0)
		go func(on bool) {
			defer wg.Done()
			_ = f.pump.Set(on, logic.PumpSourceAuto)
		}(i%3 == 0)
	}
	wg.Wait()

	snap := f.store.Snapshot()
	writes := f.gw.PumpWrites()
	require.Len(t, writes, 100)
	assert.Equal(t, writes[len(writes)-1], snap.PumpOn)
	assert.Equal(t, f.gw.PumpOn(), snap.PumpOn)
	assert.Equal(t, uint64(100), snap.PumpWrites)
}

func TestForceOff(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pump.Set(true, logic.PumpSourceManual))

	require.NoError(t, f.pump.ForceOff())
	assert.False(t, f.gw.PumpOn())
	assert.False(t, f.store.Snapshot().PumpOn)

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, logic.EventPumpOff, events[1].Type)
	assert.Equal(t, logic.PumpSourceManual, events[1].Source)
}

func TestPublishFailureDoesNotFailPump(t *testing.T) {
	f := newFixture(t)
	f.pub.PublishError = errors.New("broker down")

	require.NoError(t, f.pump.Set(true, logic.PumpSourceManual))
	assert.True(t, f.store.Snapshot().PumpOn)
}
