// Package provision sequences Wi-Fi setup: access point, credential capture,
// station connection and fallback to the access point on failure.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/state"
)

// DefaultStationTimeout bounds a station connection attempt.
const DefaultStationTimeout = 10 * time.Second

// ErrNotAccepting is returned by Submit outside AccessPointActive.
var ErrNotAccepting = errors.New("not accepting credentials")

// Radio is the part of the radio controller the flow drives.
type Radio interface {
	StartAccessPoint(ctx context.Context, ssid, password string) (string, error)
	StopAccessPoint(ctx context.Context) error
	ConnectStation(ctx context.Context, ssid, password string, timeout time.Duration) (string, error)
}

// Config holds the access point identity and an optional pre-configured station.
type Config struct {
	APSSID         string
	APPassword     string
	Station        logic.Credentials
	StationTimeout time.Duration
}

// Flow is the provisioning state machine.
type Flow struct {
	radio Radio
	store *state.Store
	cfg   Config
	log   *zap.Logger

	mu          sync.Mutex
	state       logic.ProvisionState
	onConnected []func(ip string)

	creds chan logic.Credentials
}

// New creates a Flow in Unconfigured.
func New(radio Radio, store *state.Store, cfg Config, log *zap.Logger) *Flow {
	if cfg.StationTimeout <= 0 {
		cfg.StationTimeout = DefaultStationTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &Flow{
		radio: radio,
		store: store,
		cfg:   cfg,
		log:   log,
		state: logic.ProvisionUnconfigured,
		creds: make(chan logic.Credentials, 1),
	}
	store.SetProvisionState(f.state)
	return f
}

// OnConnected registers fn to run with the station IP once connected.
func (f *Flow) OnConnected(fn func(ip string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnected = append(f.onConnected, fn)
}

// State returns the current provisioning step.
func (f *Flow) State() logic.ProvisionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// AcceptingCredentials reports whether Submit would currently accept input.
func (f *Flow) AcceptingCredentials() bool {
	return f.State().AcceptsCredentials()
}

func (f *Flow) transitionLocked(to logic.ProvisionState) error {
	if !logic.CanTransition(f.state, to) {
		return fmt.Errorf("provisioning: illegal transition %s -> %s", f.state, to)
	}
	f.log.Info("provisioning", zap.String("from", string(f.state)), zap.String("to", string(to)))
	f.state = to
	f.store.SetProvisionState(to)
	return nil
}

func (f *Flow) transition(to logic.ProvisionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionLocked(to)
}

// Establish brings up initial connectivity. A pre-configured station is tried
// first; otherwise, or when it fails, the access point is started. An error
// means the access point could not be activated.
func (f *Flow) Establish(ctx context.Context) error {
	if f.cfg.Station.SSID != "" {
		if err := f.transition(logic.ProvisionCredentialsReceived); err != nil {
			return err
		}
		f.store.SetCredentials(f.cfg.Station)
		if f.connect(ctx, f.cfg.Station) {
			return nil
		}
	}
	return f.startAP(ctx)
}

// Submit hands credentials from the configuration page to the flow.
func (f *Flow) Submit(ssid, password string) error {
	c := logic.Credentials{SSID: strings.TrimSpace(ssid), Password: password}
	if err := logic.ValidateCredentials(c); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.AcceptsCredentials() {
		return ErrNotAccepting
	}
	if err := f.transitionLocked(logic.ProvisionCredentialsReceived); err != nil {
		return err
	}
	f.store.SetCredentials(c)
	f.store.AppendLog("credentials received for " + c.SSID)
	// Capacity 1 and the state check above guarantee room.
	f.creds <- c
	return nil
}

// Run consumes submitted credentials until a station connection succeeds or
// ctx is cancelled. A failed attempt restarts the access point and waits for a
// new submission. Failing to restart the access point is returned.
func (f *Flow) Run(ctx context.Context) error {
	for {
		if f.State() == logic.ProvisionStationConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case c := <-f.creds:
			if f.connect(ctx, c) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			if err := f.startAP(ctx); err != nil {
				return err
			}
		}
	}
}

func (f *Flow) connect(ctx context.Context, c logic.Credentials) bool {
	if err := f.transition(logic.ProvisionStationConnecting); err != nil {
		f.log.Error("connect", zap.Error(err))
		return false
	}

	ip, err := f.radio.ConnectStation(ctx, c.SSID, c.Password, f.cfg.StationTimeout)
	if err != nil {
		f.log.Warn("station connection failed", zap.String("ssid", c.SSID), zap.Error(err))
		f.store.AppendLog("could not connect to " + c.SSID)
		_ = f.transition(logic.ProvisionStationFailed)
		return false
	}

	if err := f.radio.StopAccessPoint(ctx); err != nil {
		f.log.Warn("stop access point", zap.Error(err))
	}
	f.store.SetIP(ip)
	f.store.AppendLog("connected to " + c.SSID + " as " + ip)

	f.mu.Lock()
	_ = f.transitionLocked(logic.ProvisionStationConnected)
	hooks := append([]func(string){}, f.onConnected...)
	f.mu.Unlock()

	for _, fn := range hooks {
		fn(ip)
	}
	return true
}

func (f *Flow) startAP(ctx context.Context) error {
	ip, err := f.radio.StartAccessPoint(ctx, f.cfg.APSSID, f.cfg.APPassword)
	if err != nil {
		f.store.AppendLog("access point failed to start")
		return fmt.Errorf("start access point %q: %w", f.cfg.APSSID, err)
	}
	f.store.SetIP(ip)
	f.store.AppendLog("access point " + f.cfg.APSSID + " active at " + ip)
	return f.transition(logic.ProvisionAccessPointActive)
}
