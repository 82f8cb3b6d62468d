// Package radio owns the Wi-Fi interface: its operating mode, the quiet
// window used while sampling the moisture ADC, access point activation and
// station connection.
package radio

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// Driver performs the raw radio operations.
type Driver interface {
	// SetRadio suspends (false) or resumes (true) radio activity.
	SetRadio(ctx context.Context, on bool) error
	StartAP(ctx context.Context, ssid, password string) error
	APActive(ctx context.Context) (bool, error)
	StopAP(ctx context.Context) error
	Connect(ctx context.Context, ssid, password string) error
	Connected(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error
	IP(ctx context.Context) (string, error)
}

// ModeRecorder receives every mode change.
type ModeRecorder interface {
	SetWiFiMode(m logic.WiFiMode)
}

// Config holds radio timing.
type Config struct {
	Settle      time.Duration // pause after suspending the radio
	MaxQuiet    time.Duration // quiet windows longer than this are logged
	APTimeout   time.Duration // bounded AP activation retry window
	APPoll      time.Duration // first AP activation poll interval
	StationPoll time.Duration // station status poll interval
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		Settle:      100 * time.Millisecond,
		MaxQuiet:    500 * time.Millisecond,
		APTimeout:   15 * time.Second,
		APPoll:      250 * time.Millisecond,
		StationPoll: time.Second,
	}
}

// Option configures a Radio.
type Option func(*Radio)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(r *Radio) { r.now = now }
}

// WithSleep overrides the context-aware sleep used for settling and station polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Radio) { r.sleep = sleep }
}

// Radio serialises every radio operation behind one mutex and tracks the mode.
type Radio struct {
	mu   sync.Mutex
	drv  Driver
	cfg  Config
	mode logic.WiFiMode
	rec  ModeRecorder
	log  *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Radio in mode Off. rec may be nil. Zero timeouts and poll
// intervals take their defaults; a zero Settle is kept.
func New(drv Driver, cfg Config, rec ModeRecorder, log *zap.Logger, opts ...Option) *Radio {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.APTimeout <= 0 {
		cfg.APTimeout = def.APTimeout
	}
	if cfg.APPoll <= 0 {
		cfg.APPoll = def.APPoll
	}
	if cfg.StationPoll <= 0 {
		cfg.StationPoll = def.StationPoll
	}
	r := &Radio{
		drv:   drv,
		cfg:   cfg,
		mode:  logic.WiFiOff,
		rec:   rec,
		log:   log,
		now:   time.Now,
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mode returns the current operating mode.
func (r *Radio) Mode() logic.WiFiMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Radio) setMode(m logic.WiFiMode) {
	if r.mode != m {
		r.log.Info("wifi mode", zap.String("from", string(r.mode)), zap.String("to", string(m)))
	}
	r.mode = m
	if r.rec != nil {
		r.rec.SetWiFiMode(m)
	}
}

// Quiet runs fn with radio activity suspended. If the radio is already off,
// fn runs directly. Resumption is deferred, so it happens even if fn fails or
// panics. A failed resume is logged and does not discard fn's result.
// fn should only perform the sensor reads.
func (r *Radio) Quiet(ctx context.Context, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode == logic.WiFiOff {
		return fn()
	}

	start := r.now()
	if serr := r.drv.SetRadio(ctx, false); serr != nil {
		return &RadioError{Op: "suspend", Err: serr}
	}
	defer func() {
		if rerr := r.drv.SetRadio(context.WithoutCancel(ctx), true); rerr != nil {
			r.log.Error("resume radio failed", zap.String("mode", string(r.mode)), zap.Error(rerr))
		}
		if held := r.now().Sub(start); r.cfg.MaxQuiet > 0 && held > r.cfg.MaxQuiet {
			r.log.Warn("quiet window overran", zap.Duration("held", held), zap.Duration("budget", r.cfg.MaxQuiet))
		}
	}()

	if serr := r.sleep(ctx, r.cfg.Settle); serr != nil {
		return serr
	}
	return fn()
}

// StartAccessPoint brings up the configuration access point and returns its
// IP address. Activation is polled with exponential backoff bounded by
// Config.APTimeout; on expiry the AP is torn down and a *RadioError returned.
func (r *Radio) StartAccessPoint(ctx context.Context, ssid, password string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.drv.StartAP(ctx, ssid, password); err != nil {
		return "", &RadioError{Op: "start access point", Err: err}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.APPoll
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = r.cfg.APTimeout

	polls := 0
	op := func() error {
		polls++
		active, err := r.drv.APActive(ctx)
		if err != nil {
			return err
		}
		if !active {
			return errAPInactive
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if serr := r.drv.StopAP(context.WithoutCancel(ctx)); serr != nil {
			r.log.Warn("stop access point after failed activation", zap.Error(serr))
		}
		r.setMode(logic.WiFiOff)
		return "", &RadioError{Op: "activate access point", Err: err}
	}

	ip, err := r.drv.IP(ctx)
	if err != nil {
		r.log.Warn("access point ip unknown", zap.Error(err))
	}
	r.setMode(logic.WiFiAccessPoint)
	r.log.Info("access point active", zap.String("ssid", ssid), zap.String("ip", ip), zap.Int("polls", polls))
	return ip, nil
}

// StopAccessPoint stops broadcasting the access point.
func (r *Radio) StopAccessPoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.drv.StopAP(ctx); err != nil {
		return &RadioError{Op: "stop access point", Err: err}
	}
	if r.mode == logic.WiFiAccessPoint {
		r.setMode(logic.WiFiOff)
	}
	return nil
}

// ConnectStation joins ssid and polls the connection status once per
// Config.StationPoll until connected or timeout has elapsed. Failure is
// returned as a *ConnectionFailure so the caller can choose a fallback.
func (r *Radio) ConnectStation(ctx context.Context, ssid, password string, timeout time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	fail := func(err error) (string, error) {
		if derr := r.drv.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			r.log.Debug("disconnect after failed connect", zap.Error(derr))
		}
		r.setMode(logic.WiFiOff)
		return "", &ConnectionFailure{SSID: ssid, Waited: r.now().Sub(start), Err: err}
	}

	if err := r.drv.Connect(ctx, ssid, password); err != nil {
		return fail(err)
	}

	for {
		ok, err := r.drv.Connected(ctx)
		if err == nil && ok {
			ip, err := r.drv.IP(ctx)
			if err != nil {
				r.log.Warn("station ip unknown", zap.Error(err))
			}
			r.setMode(logic.WiFiStation)
			return ip, nil
		}
		if err != nil {
			r.log.Debug("station status poll failed", zap.Error(err))
		}
		if r.now().Sub(start) >= timeout {
			return fail(ErrTimeout)
		}
		if err := r.sleep(ctx, r.cfg.StationPoll); err != nil {
			return fail(err)
		}
	}
}
