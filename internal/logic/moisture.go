package logic

import (
	"fmt"
	"strconv"
	"strings"
)

// MoisturePercent converts a raw ADC reading to a percentage.
// Values outside the ADC range are clamped, so the result is always in [0,100].
func MoisturePercent(raw int) int {
	if raw < MoistureRawMin {
		raw = MoistureRawMin
	}
	if raw > MoistureRawMax {
		raw = MoistureRawMax
	}
	return 100 * raw / MoistureRawMax
}

// ValidRaw reports whether raw is inside the ADC range.
func ValidRaw(raw int) bool {
	return raw >= MoistureRawMin && raw <= MoistureRawMax
}

// ValidationError reports rejected user input. State is never mutated when
// one is returned.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ValidateThreshold checks a moisture threshold percentage.
func ValidateThreshold(percent int) error {
	if percent < 0 || percent > 100 {
		return &ValidationError{Field: "threshold", Value: strconv.Itoa(percent), Reason: "must be between 0 and 100"}
	}
	return nil
}

// ValidateInterval checks a check interval in minutes.
func ValidateInterval(minutes int) error {
	if minutes <= 0 {
		return &ValidationError{Field: "interval", Value: strconv.Itoa(minutes), Reason: "must be a positive number of minutes"}
	}
	if minutes > MaxIntervalMinutes {
		return &ValidationError{Field: "interval", Value: strconv.Itoa(minutes), Reason: fmt.Sprintf("must be at most %d minutes (7 days)", MaxIntervalMinutes)}
	}
	return nil
}

// ParseThreshold parses and validates a threshold form value.
func ParseThreshold(s string) (int, error) {
	n, err := parseInt("threshold", s)
	if err != nil {
		return 0, err
	}
	if err := ValidateThreshold(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseInterval parses and validates an interval form value.
func ParseInterval(s string) (int, error) {
	n, err := parseInt("interval", s)
	if err != nil {
		return 0, err
	}
	if err := ValidateInterval(n); err != nil {
		return 0, err
	}
	return n, nil
}

func parseInt(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Field: field, Value: s, Reason: "not a whole number"}
	}
	return n, nil
}
