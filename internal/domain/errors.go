package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidRequest is wrapped by every request construction failure.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownProvider is wrapped when a provider kind is outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider kind")

	// ErrStreamClosed is returned when reading from a stream after Close.
	ErrStreamClosed = errors.New("stream closed")

	// ErrModelNotFound is wrapped when a provider does not list a model.
	ErrModelNotFound = errors.New("model not found")
)

// ConfigError reports an invalid or missing configuration. Never retryable.
type ConfigError struct {
	Op  string // Operation that failed (read, unmarshal, validate, resolve)
	Err error  // Underlying error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s error: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError collects every validation failure found in one pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration validation failed with %d errors:\n  - %s",
		len(e.Errors), strings.Join(e.Errors, "\n  - "))
}

// HasError checks if a specific field has a validation error.
func (e *ValidationError) HasError(field string) bool {
	for _, err := range e.Errors {
		if strings.Contains(err, field) {
			return true
		}
	}
	return false
}

// UnsupportedParameterError is returned by an adapter when the request uses an
// option the provider cannot express. It is raised before any network call.
type UnsupportedParameterError struct {
	Provider  ProviderKind
	Parameter string
	Reason    string
}

func (e *UnsupportedParameterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s does not support parameter %q", e.Provider, e.Parameter)
	}
	return fmt.Sprintf("%s does not support parameter %q: %s", e.Provider, e.Parameter, e.Reason)
}

// TransportError is a network-level failure: connect, TLS, timeout, reset.
type TransportError struct {
	Op        string
	Err       error
	retryable bool
}

// NewTransportError builds a TransportError.
func NewTransportError(op string, err error, retryable bool) *TransportError {
	return &TransportError{Op: op, Err: err, retryable: retryable}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a new attempt might succeed.
func (e *TransportError) Retryable() bool {
	return e.retryable
}

// ProviderError is an error reported by the provider itself.
type ProviderError struct {
	Provider   ProviderKind
	StatusCode int    // HTTP status, zero for in-stream errors
	Code       string // provider error code or type
	Message    string

	// RetryAfter is the provider's Retry-After hint, zero when absent.
	RetryAfter time.Duration

	retryable bool
}

// NewProviderError builds a ProviderError whose retryability follows the status code.
func NewProviderError(provider ProviderKind, status int, code, message string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Code:       code,
		Message:    message,
		retryable:  IsRetryableStatus(status),
	}
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s API error", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " [%d]", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Retryable reports whether a new attempt might succeed.
func (e *ProviderError) Retryable() bool {
	return e.retryable
}

// SetRetryable overrides the status-derived retryability.
func (e *ProviderError) SetRetryable(retryable bool) *ProviderError {
	e.retryable = retryable
	return e
}

// MalformedResponseError is returned when a provider response cannot be
// mapped into the unified model.
type MalformedResponseError struct {
	Provider ProviderKind
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// retryableStatus lists the HTTP statuses worth retrying.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusConflict:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	529:                            true, // Anthropic "overloaded"
}

// IsRetryableStatus reports whether an HTTP status is transient.
func IsRetryableStatus(status int) bool {
	return retryableStatus[status]
}

// IsRetryable reports whether err (or anything it wraps) says a retry might help.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// RetryAfter returns the provider's Retry-After hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsUnsupportedParameter checks if an error is an UnsupportedParameterError.
func IsUnsupportedParameter(err error) bool {
	var target *UnsupportedParameterError
	return errors.As(err, &target)
}

// IsMalformedResponse checks if an error is a MalformedResponseError.
func IsMalformedResponse(err error) bool {
	var target *MalformedResponseError
	return errors.As(err, &target)
}
