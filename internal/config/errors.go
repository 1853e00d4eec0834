package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is the kind of every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError reports a missing or contradictory configuration value.
// It is fatal: no task graph is built and no artifact is written.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

func invalidf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Invalidf builds a ConfigurationError for callers outside this package that
// detect a configuration problem late (e.g. during strategy selection).
func Invalidf(field, format string, args ...any) error {
	return invalidf(field, format, args...)
}
