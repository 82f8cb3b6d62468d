// Package state holds the single process-wide snapshot shared by the sensor
// refresh task, the watering controller, the provisioning flow and the HTTP
// handler. Every access goes through one lock that is never held across a
// sensor read, radio call or network call.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// Log capacity bounds.
const (
	MinLogCapacity     = 5
	MaxLogCapacity     = 50
	DefaultLogCapacity = 20
)

// ErrRawOutOfRange is returned by UpdateSensor for readings outside the ADC range.
var ErrRawOutOfRange = errors.New("moisture reading out of range")

// Config contains daemon configuration for display.
type Config struct {
	WateringDuration time.Duration
	RefreshPeriod    time.Duration
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
	APSSID           string
}

// Defaults seeds a new Store.
type Defaults struct {
	Threshold       int
	IntervalMinutes int
	LogCapacity     int
	Config          Config
}

// Snapshot is a point-in-time view of the shared state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	MoistureRaw int
	HasReading  bool
	ReadingAt   time.Time
	WaterLevel  logic.WaterLevel

	Threshold       int
	IntervalMinutes int

	PumpOn     bool
	PumpSource logic.PumpSource
	PumpWrites uint64

	Watering     logic.WateringState
	SuppressNext bool
	Halted       bool
	Indicator    logic.Color

	WiFiMode    logic.WiFiMode
	Provision   logic.ProvisionState
	Credentials *logic.Credentials
	IP          string

	MQTTConnected bool

	// Log is newest first.
	Log []LogEntry

	StartTime time.Time
	Now       time.Time
	Config    Config
}

// MoisturePercent is derived from MoistureRaw on every call.
func (s Snapshot) MoisturePercent() int {
	return logic.MoisturePercent(s.MoistureRaw)
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for log timestamps and Snapshot.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds mutable shared state behind an RWMutex.
type Store struct {
	mu    sync.RWMutex
	snap  Snapshot
	creds *logic.Credentials
	log   *logRing
	now   func() time.Time
}

// NewStore creates a Store with the given start time and defaults.
// Invalid defaults fall back to 50% / 10 minutes.
func NewStore(startTime time.Time, d Defaults, opts ...Option) *Store {
	if logic.ValidateThreshold(d.Threshold) != nil {
		d.Threshold = 50
	}
	if logic.ValidateInterval(d.IntervalMinutes) != nil {
		d.IntervalMinutes = 10
	}
	s := &Store{
		snap: Snapshot{
			WaterLevel:      logic.WaterUnknown,
			Threshold:       d.Threshold,
			IntervalMinutes: d.IntervalMinutes,
			Watering:        logic.WateringIdle,
			Indicator:       logic.ColorOff,
			WiFiMode:        logic.WiFiOff,
			Provision:       logic.ProvisionUnconfigured,
			StartTime:       startTime,
			Config:          d.Config,
		},
		log: newLogRing(ClampLogCapacity(d.LogCapacity)),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampLogCapacity bounds n to [MinLogCapacity, MaxLogCapacity]; zero selects the default.
func ClampLogCapacity(n int) int {
	switch {
	case n == 0:
		return DefaultLogCapacity
	case n < MinLogCapacity:
		return MinLogCapacity
	case n > MaxLogCapacity:
		return MaxLogCapacity
	}
	return n
}

// Snapshot returns a consistent point-in-time copy of the shared state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	snap.Log = s.log.newestFirst()
	if s.creds != nil {
		c := *s.creds
		snap.Credentials = &c
	}
	s.mu.RUnlock()
	snap.Now = s.now()
	return snap
}

// UpdateSensor records an accepted reading. Out-of-range raw values are
// rejected and leave the previous reading untouched.
func (s *Store) UpdateSensor(raw int, level logic.WaterLevel) error {
	if !logic.ValidRaw(raw) {
		return fmt.Errorf("%w: %d", ErrRawOutOfRange, raw)
	}
	t := s.now()
	s.mu.Lock()
	s.snap.MoistureRaw = raw
	s.snap.HasReading = true
	s.snap.ReadingAt = t
	s.snap.WaterLevel = level
	s.mu.Unlock()
	return nil
}

// UpdateThreshold sets the moisture threshold percentage.
func (s *Store) UpdateThreshold(percent int) error {
	if err := logic.ValidateThreshold(percent); err != nil {
		return err
	}
	s.mu.Lock()
	s.snap.Threshold = percent
	s.mu.Unlock()
	return nil
}

// UpdateInterval sets the check interval in minutes.
func (s *Store) UpdateInterval(minutes int) error {
	if err := logic.ValidateInterval(minutes); err != nil {
		return err
	}
	s.mu.Lock()
	s.snap.IntervalMinutes = minutes
	s.mu.Unlock()
	return nil
}

// UpdateSettings applies an optional threshold and interval together.
// Both are validated first; on any error nothing changes.
func (s *Store) UpdateSettings(threshold, interval *int) error {
	if threshold != nil {
		if err := logic.ValidateThreshold(*threshold); err != nil {
			return err
		}
	}
	if interval != nil {
		if err := logic.ValidateInterval(*interval); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if threshold != nil {
		s.snap.Threshold = *threshold
	}
	if interval != nil {
		s.snap.IntervalMinutes = *interval
	}
	s.mu.Unlock()
	return nil
}

// RequestPump records the pump state and who requested it. A non-empty msg is
// appended to the log in the same critical section.
func (s *Store) RequestPump(on bool, source logic.PumpSource, msg string) {
	t := s.now()
	s.mu.Lock()
	s.snap.PumpOn = on
	s.snap.PumpSource = source
	s.snap.PumpWrites++
	if msg != "" {
		s.log.push(LogEntry{Time: t, Message: msg})
	}
	s.mu.Unlock()
}

// AppendLog adds a message, evicting the oldest once capacity is exceeded.
func (s *Store) AppendLog(msg string) {
	t := s.now()
	s.mu.Lock()
	s.log.push(LogEntry{Time: t, Message: msg})
	s.mu.Unlock()
}

// SuppressNextCheck makes the next automatic check boundary a no-op.
func (s *Store) SuppressNextCheck() {
	s.mu.Lock()
	s.snap.SuppressNext = true
	s.mu.Unlock()
}

// TakeSuppression reports and clears the suppression flag.
func (s *Store) TakeSuppression() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.snap.SuppressNext
	s.snap.SuppressNext = false
	return was
}

// SetWateringState sets the watering controller state, with an optional log message.
func (s *Store) SetWateringState(ws logic.WateringState, msg string) {
	t := s.now()
	s.mu.Lock()
	s.snap.Watering = ws
	if msg != "" {
		s.log.push(LogEntry{Time: t, Message: msg})
	}
	s.mu.Unlock()
}

// SetHalted marks automatic watering as halted after a fault.
func (s *Store) SetHalted(halted bool) {
	s.mu.Lock()
	s.snap.Halted = halted
	s.mu.Unlock()
}

// SetIndicator records the indicator colour.
func (s *Store) SetIndicator(c logic.Color) {
	s.mu.Lock()
	s.snap.Indicator = c
	s.mu.Unlock()
}

// SetWiFiMode records the radio mode.
func (s *Store) SetWiFiMode(m logic.WiFiMode) {
	s.mu.Lock()
	s.snap.WiFiMode = m
	s.mu.Unlock()
}

// SetProvisionState records the provisioning step.
func (s *Store) SetProvisionState(p logic.ProvisionState) {
	s.mu.Lock()
	s.snap.Provision = p
	s.mu.Unlock()
}

// SetCredentials stores station credentials for the process lifetime.
func (s *Store) SetCredentials(c logic.Credentials) {
	s.mu.Lock()
	s.creds = &c
	s.mu.Unlock()
}

// SetIP records the current IP address.
func (s *Store) SetIP(ip string) {
	s.mu.Lock()
	s.snap.IP = ip
	s.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (s *Store) SetMQTTConnected(connected bool) {
	s.mu.Lock()
	s.snap.MQTTConnected = connected
	s.mu.Unlock()
}
