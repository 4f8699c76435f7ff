// Package domain contains the core entities and value objects of the client.
// These structs are transport-agnostic and know nothing about provider wire formats.
package domain

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"
)

// ProviderKind identifies one of the supported LLM providers.
// The set is closed: every kind has exactly one adapter.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
)

// AllKinds returns every supported provider kind.
func AllKinds() []ProviderKind {
	return []ProviderKind{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// IsValid reports whether k is one of the supported kinds.
func (k ProviderKind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

func (k ProviderKind) String() string {
	return string(k)
}

// Secret holds a credential. It never prints its value.
type Secret string

const redactedSecret = "[REDACTED]"

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedSecret
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return s.String()
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// MarshalText keeps encoders from leaking the value.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the raw credential. Only adapters building auth headers call it.
func (s Secret) Reveal() string {
	return string(s)
}

// Default retry settings.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMultiplier     = 2.0
	DefaultTimeout        = 60 * time.Second
)

// RetryPolicy controls how the facade retries retryable failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of sends, including the first one.
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration `json:"initial_backoff" mapstructure:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff caps any single delay, including provider Retry-After hints.
	MaxBackoff time.Duration `json:"max_backoff" mapstructure:"max_backoff" yaml:"max_backoff"`

	// Multiplier is the exponential growth factor between delays.
	Multiplier float64 `json:"multiplier" mapstructure:"multiplier" yaml:"multiplier"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Multiplier:     DefaultMultiplier,
	}
}

// Delay returns the wait before attempt number attempt+1, given that attempt
// sends have already failed. attempt starts at 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// validate returns retry policy problems. Zero fields mean "use the default".
func (p RetryPolicy) validate() []string {
	var errs []string
	if p.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts cannot be negative")
	}
	if p.InitialBackoff < 0 {
		errs = append(errs, "retry.initial_backoff cannot be negative")
	}
	if p.MaxBackoff < 0 {
		errs = append(errs, "retry.max_backoff cannot be negative")
	}
	if p.MaxBackoff > 0 && p.InitialBackoff > p.MaxBackoff {
		errs = append(errs, "retry.initial_backoff cannot exceed retry.max_backoff")
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}
	return errs
}

// ProviderConfig is everything needed to talk to one provider.
// It is built once and shared read-only between calls.
type ProviderConfig struct {
	// Kind selects the adapter.
	Kind ProviderKind

	// Endpoint overrides the provider's public base URL. Empty means default.
	Endpoint string

	// Credential is sent only in the provider's auth header.
	Credential Secret

	// Timeout bounds a single send. Zero means DefaultTimeout.
	Timeout time.Duration

	// Retry is the retry policy for the facade.
	Retry RetryPolicy

	// Headers are extra headers added to every request.
	Headers map[string]string
}

// Validate checks the configuration and returns a *ConfigError on failure.
func (c ProviderConfig) Validate() error {
	var problems []string

	if !c.Kind.IsValid() {
		return &ConfigError{
			Op:  "validate",
			Err: fmt.Errorf("%w: %q", ErrUnknownProvider, c.Kind),
		}
	}
	if c.Credential == "" {
		problems = append(problems, fmt.Sprintf("%s: credential is required", c.Kind))
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s: endpoint %q is not an absolute URL", c.Kind, c.Endpoint))
		}
	}
	if c.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("%s: timeout cannot be negative", c.Kind))
	}
	problems = append(problems, c.Retry.validate()...)

	if len(problems) > 0 {
		return &ConfigError{Op: "validate", Err: &ValidationError{Errors: problems}}
	}
	return nil
}

// EffectiveTimeout returns Timeout or the default.
func (c ProviderConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// EffectiveRetry returns the retry policy with zero fields filled from defaults.
func (c ProviderConfig) EffectiveRetry() RetryPolicy {
	p := c.Retry
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Model describes a model offered by a provider.
type Model struct {
	ID          string       `json:"id"`
	Provider    ProviderKind `json:"provider"`
	DisplayName string       `json:"display_name,omitempty"`
}
