package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FakeDriver is an in-memory Driver. Configure the exported knobs before use.
type FakeDriver struct {
	// APPollsUntilActive is how many APActive polls report false first.
	// A negative value means the AP never comes up.
	APPollsUntilActive int

	// Networks maps joinable SSIDs to their passwords.
	Networks map[string]string

	// StationPollsUntilUp is how many Connected polls report false for a
	// joinable network before it comes up.
	StationPollsUntilUp int

	APIP      string
	StationIP string

	StartAPError  error
	SetRadioError error

	mu          sync.Mutex
	radioOn     bool
	apUp        bool
	apPolls     int
	joining     string
	joinOK      bool
	joinPolls   int
	station     string
	calls       []string
	suspensions int
}

// NewFakeDriver returns a driver whose AP comes up on the first poll.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Networks:  map[string]string{},
		APIP:      "192.168.4.1",
		StationIP: "192.168.1.50",
		radioOn:   true,
	}
}

func (f *FakeDriver) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// SetRadio suspends or resumes the fake radio.
func (f *FakeDriver) SetRadio(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("radio %v", on)
	if f.SetRadioError != nil {
		return f.SetRadioError
	}
	if !on {
		f.suspensions++
	}
	f.radioOn = on
	return nil
}

// StartAP begins activating the access point.
func (f *FakeDriver) StartAP(_ context.Context, ssid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start_ap %s", ssid)
	if f.StartAPError != nil {
		return f.StartAPError
	}
	f.apPolls = 0
	f.station = ""
	return nil
}

// APActive reports the AP up after APPollsUntilActive polls.
func (f *FakeDriver) APActive(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.APPollsUntilActive < 0 {
		return false, nil
	}
	if f.apPolls < f.APPollsUntilActive {
		f.apPolls++
		return false, nil
	}
	f.apUp = true
	return true, nil
}

// StopAP takes the access point down.
func (f *FakeDriver) StopAP(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop_ap")
	f.apUp = false
	return nil
}

// Connect starts joining ssid.
func (f *FakeDriver) Connect(_ context.Context, ssid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect %s", ssid)
	if ssid == "" {
		return errors.New("empty ssid")
	}
	want, known := f.Networks[ssid]
	f.apUp = false
	f.joining = ssid
	f.joinOK = known && want == password
	f.joinPolls = 0
	return nil
}

// Connected reports the station up after StationPollsUntilUp polls for a
// joinable network; unknown networks never come up.
func (f *FakeDriver) Connected(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.station != "" {
		return true, nil
	}
	if !f.joinOK {
		return false, nil
	}
	if f.joinPolls < f.StationPollsUntilUp {
		f.joinPolls++
		return false, nil
	}
	f.station = f.joining
	return true, nil
}

// Disconnect drops any station connection.
func (f *FakeDriver) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	f.station = ""
	f.joining = ""
	f.joinOK = false
	return nil
}

// IP returns the address for the current mode.
func (f *FakeDriver) IP(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.station != "":
		return f.StationIP, nil
	case f.apUp:
		return f.APIP, nil
	}
	return "", errors.New("no address")
}

// RadioOn reports whether the fake radio is currently transmitting.
func (f *FakeDriver) RadioOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.radioOn
}

// APUp reports whether the access point is broadcasting.
func (f *FakeDriver) APUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apUp
}

// Suspensions returns how many times the radio was suspended.
func (f *FakeDriver) Suspensions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspensions
}

// Calls returns the recorded operations in order.
func (f *FakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
