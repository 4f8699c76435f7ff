package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hpn/hpn-unillm/internal/domain"
)

// ConfigError represents a configuration loading error.
type ConfigError = domain.ConfigError

// ValidationError represents configuration validation errors.
type ValidationError = domain.ValidationError

// MissingKeyError represents a missing required configuration key error.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("required configuration key '%s' is missing", e.Key)
}

// InvalidValueError represents an invalid configuration value error.
type InvalidValueError struct {
	Key           string
	Value         interface{}
	AllowedValues []string
}

func (e *InvalidValueError) Error() string {
	if len(e.AllowedValues) > 0 {
		return fmt.Sprintf("invalid value '%v' for key '%s', allowed values: %s",
			e.Value, e.Key, strings.Join(e.AllowedValues, ", "))
	}
	return fmt.Sprintf("invalid value '%v' for key '%s'", e.Value, e.Key)
}

// IsValidationError checks if an error is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfigError checks if an error is or wraps a ConfigError.
func IsConfigError(err error) bool {
	return domain.IsConfigError(err)
}

// IsMissingKeyError checks if an error is or wraps a MissingKeyError.
func IsMissingKeyError(err error) bool {
	var mk *MissingKeyError
	return errors.As(err, &mk)
}

// IsInvalidValueError checks if an error is or wraps an InvalidValueError.
func IsInvalidValueError(err error) bool {
	var iv *InvalidValueError
	return errors.As(err, &iv)
}
