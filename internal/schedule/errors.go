package schedule

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrTooManyProbes indicates more probes per day than available slots
	ErrTooManyProbes = errors.New("schedule: probe count exceeds available slots")

	// ErrInvalidWindow indicates a malformed or overlapping work-hour window
	ErrInvalidWindow = errors.New("schedule: invalid work-hour window")

	// ErrInvalidValue indicates any other out-of-range configuration value
	ErrInvalidValue = errors.New("schedule: invalid configuration value")
)

// ConfigurationError is fatal at startup. It names the offending field.
type ConfigurationError struct {
	Field  string // config key, e.g. "probes.per_day"
	Reason string // human readable detail
	Err    error  // one of the sentinels above
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Invalid builds a ConfigurationError wrapping ErrInvalidValue.
func Invalid(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidValue}
}
