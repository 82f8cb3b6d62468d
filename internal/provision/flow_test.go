package provision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/radio"
	"github.com/sweeney/plant-waterer/internal/state"
)

// clock advances only when the radio sleeps, so connect timeouts are instant.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type fixture struct {
	flow  *Flow
	drv   *radio.FakeDriver
	store *state.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 21, 12, 0, 0, 0, time.UTC)}
	store := state.NewStore(clk.Now(), state.Defaults{Threshold: 50, IntervalMinutes: 10})
	drv := radio.NewFakeDriver()
	drv.Networks["home"] = "correct-horse"
	r := radio.New(drv, radio.Config{APTimeout: 50 * time.Millisecond, APPoll: 5 * time.Millisecond}, store, zap.NewNop(),
		radio.WithClock(clk.Now), radio.WithSleep(clk.Sleep))
	if cfg.APSSID == "" {
		cfg.APSSID = "PlantWateringAuto"
		cfg.APPassword = "12345678"
	}
	return &fixture{flow: New(r, store, cfg, zap.NewNop()), drv: drv, store: store}
}

func runFlow(ctx context.Context, f *Flow) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	return done
}

func TestEstablishStartsAccessPoint(t *testing.T) {
	fx := newFixture(t, Config{})

	require.NoError(t, fx.flow.Establish(context.Background()))

	assert.Equal(t, logic.ProvisionAccessPointActive, fx.flow.State())
	assert.True(t, fx.flow.AcceptingCredentials())
	snap := fx.store.Snapshot()
	assert.Equal(t, logic.ProvisionAccessPointActive, snap.Provision)
	assert.Equal(t, logic.WiFiAccessPoint, snap.WiFiMode)
	assert.Equal(t, "192.168.4.1", snap.IP)
	assert.Contains(t, fx.drv.Calls(), "start_ap PlantWateringAuto")
}

func TestEstablishFailsWhenAccessPointNeverActivates(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.drv.APPollsUntilActive = -1

	err := fx.flow.Establish(context.Background())

	var rerr *radio.RadioError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, logic.ProvisionUnconfigured, fx.flow.State())
	assert.Equal(t, logic.WiFiOff, fx.store.Snapshot().WiFiMode)
}

func TestSubmitRejectedBeforeAccessPoint(t *testing.T) {
	fx := newFixture(t, Config{})

	err := fx.flow.Submit("home", "correct-horse")
	assert.ErrorIs(t, err, ErrNotAccepting)
	assert.Equal(t, logic.ProvisionUnconfigured, fx.flow.State())
}

func TestSubmitValidatesInput(t *testing.T) {
	fx := newFixture(t, Config{})
	require.NoError(t, fx.flow.Establish(context.Background()))

	err := fx.flow.Submit("  ", "correct-horse")
	var ve *logic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ssid", ve.Field)
	assert.Equal(t, logic.ProvisionAccessPointActive, fx.flow.State())
	assert.Nil(t, fx.store.Snapshot().Credentials)
}

func TestSubmitConnectsStation(t *testing.T) {
	fx := newFixture(t, Config{})
	require.NoError(t, fx.flow.Establish(context.Background()))

	var connectedIP string
	fx.flow.OnConnected(func(ip string) { connectedIP = ip })

	done := runFlow(context.Background(), fx.flow)
	require.NoError(t, fx.flow.Submit("home", "correct-horse"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after connecting")
	}

	assert.Equal(t, logic.ProvisionStationConnected, fx.flow.State())
	assert.Equal(t, "192.168.1.50", connectedIP)
	snap := fx.store.Snapshot()
	assert.Equal(t, logic.WiFiStation, snap.WiFiMode)
	assert.Equal(t, "192.168.1.50", snap.IP)
	require.NotNil(t, snap.Credentials)
	assert.Equal(t, "home", snap.Credentials.SSID)
	assert.False(t, fx.flow.AcceptingCredentials())
	assert.ErrorIs(t, fx.flow.Submit("home", "correct-horse"), ErrNotAccepting)
}

func TestFailedConnectReturnsToAccessPoint(t *testing.T) {
	fx := newFixture(t, Config{})
	require.NoError(t, fx.flow.Establish(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runFlow(ctx, fx.flow)

	require.NoError(t, fx.flow.Submit("home", "wrong-password"))
	require.Eventually(t, fx.flow.AcceptingCredentials, 2*time.Second, 5*time.Millisecond)

	snap := fx.store.Snapshot()
	assert.Equal(t, logic.WiFiAccessPoint, snap.WiFiMode)
	assert.Equal(t, "could not connect to home", snap.Log[1].Message)

	// Only a new submission triggers another attempt.
	connects := 0
	for _, c := range fx.drv.Calls() {
		if c == "connect home" {
			connects++
		}
	}
	assert.Equal(t, 1, connects)

	require.NoError(t, fx.flow.Submit("home", "correct-horse"))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after connecting")
	}
	assert.Equal(t, logic.ProvisionStationConnected, fx.flow.State())
}

func TestPreconfiguredStation(t *testing.T) {
	fx := newFixture(t, Config{Station: logic.Credentials{SSID: "home", Password: "correct-horse"}})

	require.NoError(t, fx.flow.Establish(context.Background()))

	assert.Equal(t, logic.ProvisionStationConnected, fx.flow.State())
	assert.NotContains(t, fx.drv.Calls(), "start_ap PlantWateringAuto")
	require.NoError(t, fx.flow.Run(context.Background()))
}

func TestPreconfiguredStationFallsBackToAccessPoint(t *testing.T) {
	fx := newFixture(t, Config{Station: logic.Credentials{SSID: "elsewhere", Password: "whatever1"}})

	require.NoError(t, fx.flow.Establish(context.Background()))

	assert.Equal(t, logic.ProvisionAccessPointActive, fx.flow.State())
	assert.Equal(t, logic.WiFiAccessPoint, fx.store.Snapshot().WiFiMode)
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := newFixture(t, Config{})
	require.NoError(t, fx.flow.Establish(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := runFlow(ctx, fx.flow)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunReturnsErrorWhenAccessPointCannotRestart(t *testing.T) {
	fx := newFixture(t, Config{})
	require.NoError(t, fx.flow.Establish(context.Background()))
	fx.drv.StartAPError = errors.New("interface busy")

	done := runFlow(context.Background(), fx.flow)
	require.NoError(t, fx.flow.Submit("home", "wrong-password"))

	select {
	case err := <-done:
		var rerr *radio.RadioError
		assert.ErrorAs(t, err, &rerr)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
