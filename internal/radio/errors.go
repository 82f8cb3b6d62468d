package radio

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is wrapped by ConnectionFailure when the station never came up.
var ErrTimeout = errors.New("timed out")

var errAPInactive = errors.New("access point not active yet")

// RadioError reports a failed radio operation (activation, suspend, resume).
type RadioError struct {
	Op  string
	Err error
}

func (e *RadioError) Error() string {
	return fmt.Sprintf("radio %s: %v", e.Op, e.Err)
}

func (e *RadioError) Unwrap() error {
	return e.Err
}

// ConnectionFailure reports a station connection that did not complete.
type ConnectionFailure struct {
	SSID   string
	Waited time.Duration
	Err    error
}

func (e *ConnectionFailure) Error() string {
	return fmt.Sprintf("connect to %q failed after %s: %v", e.SSID, e.Waited.Truncate(time.Millisecond), e.Err)
}

func (e *ConnectionFailure) Unwrap() error {
	return e.Err
}
