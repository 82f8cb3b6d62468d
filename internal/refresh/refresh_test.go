package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/hardware"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/radio"
	"github.com/sweeney/plant-waterer/internal/state"
	"github.com/sweeney/plant-waterer/internal/telemetry"
)

var testNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type memRecorder struct {
	mu       sync.Mutex
	readings []telemetry.Reading
}

func (m *memRecorder) Record(r telemetry.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
}

func (m *memRecorder) Close() {}

func (m *memRecorder) all() []telemetry.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telemetry.Reading(nil), m.readings...)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newFixture(t *testing.T, samples ...int) (*Task, *hardware.FakeGateway, *state.Store, *memRecorder) {
	t.Helper()
	gw := hardware.NewFakeGateway(samples...)
	store := state.NewStore(testNow, state.Defaults{Threshold: 50, IntervalMinutes: 10})
	r := radio.New(radio.NewFakeDriver(), radio.Config{}, store, zap.NewNop(), radio.WithSleep(noSleep))
	rec := &memRecorder{}
	task := New(r, gw, store, time.Second, zap.NewNop(), WithRecorder(rec), WithClock(func() time.Time { return testNow }))
	return task, gw, store, rec
}

func TestRefreshUpdatesState(t *testing.T) {
	task, _, store, rec := newFixture(t, 2000)

	require.NoError(t, task.Refresh(context.Background()))

	snap := store.Snapshot()
	assert.True(t, snap.HasReading)
	assert.Equal(t, 2000, snap.MoistureRaw)
	assert.Equal(t, 48, snap.MoisturePercent())
	assert.Equal(t, logic.WaterFull, snap.WaterLevel)
	assert.Empty(t, snap.Log)

	readings := rec.all()
	require.Len(t, readings, 1)
	assert.Equal(t, telemetry.Reading{Time: testNow, Raw: 2000, Percent: 48, Level: logic.WaterFull}, readings[0])
}

func TestRefreshMoistureErrorKeepsPriorValues(t *testing.T) {
	task, gw, store, rec := newFixture(t, 1500)
	require.NoError(t, task.Refresh(context.Background()))

	gw.SetMoistureError(errors.New("i2c timeout"))
	gw.SetLevel(logic.WaterLow)
	err := task.Refresh(context.Background())

	var sre *hardware.SensorReadError
	require.ErrorAs(t, err, &sre)
	snap := store.Snapshot()
	assert.Equal(t, 1500, snap.MoistureRaw)
	assert.Equal(t, logic.WaterFull, snap.WaterLevel)
	require.Len(t, snap.Log, 1, "exactly one log entry per failed cycle")
	assert.Equal(t, "sensor read failed: moisture", snap.Log[0].Message)
	assert.Len(t, rec.all(), 1, "failed reading must not be recorded")
}

func TestRefreshWaterLevelErrorKeepsPriorValues(t *testing.T) {
	task, gw, store, _ := newFixture(t, 1500, 3000)
	require.NoError(t, task.Refresh(context.Background()))

	gw.SetLevelError(errors.New("line busy"))
	require.Error(t, task.Refresh(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, 1500, snap.MoistureRaw, "moisture from the failed cycle is discarded")
	require.Len(t, snap.Log, 1)
	assert.Equal(t, "sensor read failed: water_level", snap.Log[0].Message)
}

func TestRefreshOutOfRangeRejected(t *testing.T) {
	task, _, store, _ := newFixture(t, 5000)

	err := task.Refresh(context.Background())
	assert.ErrorIs(t, err, state.ErrRawOutOfRange)

	snap := store.Snapshot()
	assert.False(t, snap.HasReading)
	require.Len(t, snap.Log, 1)
	assert.Equal(t, "sensor read failed: moisture out of range", snap.Log[0].Message)
}

func TestRefreshReadsInsideQuietWindow(t *testing.T) {
	gw := hardware.NewFakeGateway(1000)
	store := state.NewStore(testNow, state.Defaults{Threshold: 50, IntervalMinutes: 10})
	drv := radio.NewFakeDriver()
	r := radio.New(drv, radio.Config{APPoll: time.Millisecond}, store, zap.NewNop(), radio.WithSleep(noSleep))
	_, err := r.StartAccessPoint(context.Background(), "PlantWateringAuto", "12345678")
	require.NoError(t, err)

	var radioOnDuringRead []bool
	gw.OnRead(func() { radioOnDuringRead = append(radioOnDuringRead, drv.RadioOn()) })

	task := New(r, gw, store, time.Second, zap.NewNop())
	require.NoError(t, task.Refresh(context.Background()))

	assert.Equal(t, []bool{false, false}, radioOnDuringRead)
	assert.True(t, drv.RadioOn(), "radio resumed after the read")
	assert.Equal(t, 1, drv.Suspensions())
}

func TestRefreshRadioFailureLogged(t *testing.T) {
	gw := hardware.NewFakeGateway(1000)
	store := state.NewStore(testNow, state.Defaults{Threshold: 50, IntervalMinutes: 10})
	drv := radio.NewFakeDriver()
	r := radio.New(drv, radio.Config{APPoll: time.Millisecond}, store, zap.NewNop(), radio.WithSleep(noSleep))
	_, err := r.StartAccessPoint(context.Background(), "ap", "12345678")
	require.NoError(t, err)
	drv.SetRadioError = errors.New("rfkill")

	task := New(r, gw, store, time.Second, zap.NewNop())
	require.Error(t, task.Refresh(context.Background()))

	snap := store.Snapshot()
	require.Len(t, snap.Log, 1)
	assert.Equal(t, "sensor read failed: radio suspend", snap.Log[0].Message)
	assert.Equal(t, 0, gw.Reads())
}

func TestRunRefreshesImmediatelyAndOnTicks(t *testing.T) {
	ticks := make(chan time.Time)
	gw := hardware.NewFakeGateway(1000, 2000, 3000)
	store := state.NewStore(testNow, state.Defaults{Threshold: 50, IntervalMinutes: 10})
	r := radio.New(radio.NewFakeDriver(), radio.Config{}, store, zap.NewNop(), radio.WithSleep(noSleep))
	task := New(r, gw, store, time.Hour, zap.NewNop(), WithTicks(ticks))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Snapshot().MoistureRaw == 1000 }, time.Second, time.Millisecond)
	ticks <- testNow
	require.Eventually(t, func() bool { return store.Snapshot().MoistureRaw == 2000 }, time.Second, time.Millisecond)
	ticks <- testNow
	require.Eventually(t, func() bool { return store.Snapshot().MoistureRaw == 3000 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunSurvivesFailedCycles(t *testing.T) {
	ticks := make(chan time.Time)
	gw := hardware.NewFakeGateway(1000)
	gw.SetMoistureError(errors.New("bus error"))
	store := state.NewStore(testNow, state.Defaults{Threshold: 50, IntervalMinutes: 10})
	r := radio.New(radio.NewFakeDriver(), radio.Config{}, store, zap.NewNop(), radio.WithSleep(noSleep))
	task := New(r, gw, store, time.Hour, zap.NewNop(), WithTicks(ticks))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = task.Run(ctx) }()

	ticks <- testNow
	gw.SetMoistureError(nil)
	ticks <- testNow
	require.Eventually(t, func() bool { return store.Snapshot().HasReading }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, len(store.Snapshot().Log), 1)
}

func TestNewDefaultsPeriod(t *testing.T) {
	task := New(nil, nil, nil, 0, nil)
	assert.Equal(t, DefaultPeriod, task.period)
}
