// Package config provides configuration management using the Singleton pattern.
// It loads provider settings from environment variables and unillm.yaml using Viper.
package config

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/hpn/hpn-unillm/internal/security"
	"gopkg.in/yaml.v3"
)

// Settings holds all library configuration values.
type Settings struct {
	// Default names the provider used when none is requested.
	Default string `json:"default" mapstructure:"default" yaml:"default"`

	// Providers maps a provider name to its settings.
	Providers map[string]ProviderSettings `json:"providers" mapstructure:"providers" yaml:"providers"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging" yaml:"logging"`

	// Cache configuration
	Cache CacheConfig `json:"cache" mapstructure:"cache" yaml:"cache"`

	configFile string
}

// ProviderSettings is the file/env form of a domain.ProviderConfig.
type ProviderSettings struct {
	// Kind selects the adapter (openai, anthropic, gemini). Defaults to the provider name.
	Kind string `json:"kind" mapstructure:"kind" yaml:"kind"`

	// Endpoint overrides the public API base URL. Optional.
	Endpoint string `json:"endpoint" mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Credential is a reference, never a literal key: "env:NAME" or "file:/path".
	Credential string `json:"credential" mapstructure:"credential" yaml:"credential"`

	// Timeout bounds a single request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout,omitempty"`

	// Retry is the retry policy.
	Retry domain.RetryPolicy `json:"retry" mapstructure:"retry" yaml:"retry"`

	// Headers are sent with every request. Optional.
	Headers map[string]string `json:"headers" mapstructure:"headers" yaml:"headers,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" mapstructure:"level" yaml:"level"`

	// Format is the log format (json, text).
	Format string `json:"format" mapstructure:"format" yaml:"format"`

	// OutputPath is the file path for log output (empty for stderr).
	OutputPath string `json:"output_path" mapstructure:"output_path" yaml:"output_path,omitempty"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	// Enabled turns on caching of non-streaming completions.
	Enabled bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`

	// TTL is how long a cached response stays valid.
	TTL time.Duration `json:"ttl" mapstructure:"ttl" yaml:"ttl"`
}

// configInstance holds the singleton configuration instance.
var (
	configInstance *Settings
	configOnce     sync.Once
	configErr      error
)

// ConfigPathEnv names the environment variable that points GetConfig at a
// config file. When unset the default search paths are used.
const ConfigPathEnv = "UNILLM_CONFIG"

// GetConfig returns the singleton Settings instance.
// It loads the configuration on first call and returns the same result after.
func GetConfig() (*Settings, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig(os.Getenv(ConfigPathEnv))
	})
	return configInstance, configErr
}

// ResetConfig resets the singleton instance.
// This is primarily used for testing purposes.
func ResetConfig() {
	configOnce = sync.Once{}
	configInstance = nil
	configErr = nil
}

// Load reads configuration without touching the singleton.
func Load(configPath string) (*Settings, error) {
	return loadConfig(configPath)
}

// ConfigFile returns the file the settings were read from, or "" when only
// defaults and environment variables were used.
func (s *Settings) ConfigFile() string {
	return s.configFile
}

// Validate validates the configuration and returns a *ValidationError listing every problem.
func (s *Settings) Validate() error {
	var validationErrors []string

	if len(s.Providers) == 0 {
		validationErrors = append(validationErrors, "providers cannot be empty, at least one provider is required")
	}
	if s.Default != "" {
		if _, ok := s.Providers[s.Default]; !ok {
			validationErrors = append(validationErrors, fmt.Sprintf("default provider '%s' is not configured", s.Default))
		}
	}

	for _, name := range s.ProviderNames() {
		p := s.Providers[name]
		prefix := "providers." + name

		kind := p.kindOr(name)
		if !kind.IsValid() {
			validationErrors = append(validationErrors, fmt.Sprintf(
				"%s.kind '%s' is invalid, must be one of: %s", prefix, kind, strings.Join(KnownKinds(), ", "),
			))
		}
		if p.Credential == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.credential is required", prefix))
		} else if err := checkCredentialRef(p.Credential); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.credential: %v", prefix, err))
		}
		if p.Timeout < 0 {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.timeout cannot be negative", prefix))
		}
		if p.Retry.MaxAttempts < 0 {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.retry.max_attempts cannot be negative", prefix))
		}
		if p.Retry.Multiplier != 0 && p.Retry.Multiplier < 1 {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.retry.multiplier must be at least 1", prefix))
		}
	}

	// Validate logging configuration
	if s.Logging.Level != "" && !isValidLogLevel(s.Logging.Level) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.level '%s' is invalid, must be one of: debug, info, warn, error",
			s.Logging.Level,
		))
	}
	if s.Logging.Format != "" && !isValidLogFormat(s.Logging.Format) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.format '%s' is invalid, must be one of: json, text",
			s.Logging.Format,
		))
	}

	if s.Cache.TTL < 0 {
		validationErrors = append(validationErrors, "cache.ttl cannot be negative")
	}

	if len(validationErrors) > 0 {
		return &ValidationError{Errors: validationErrors}
	}

	return nil
}

// isValidLogLevel checks if the log level is valid.
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// isValidLogFormat checks if the log format is valid.
func isValidLogFormat(format string) bool {
	return format == "json" || format == "text"
}

// ProviderNames returns the configured provider names in sorted order.
func (s *Settings) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider resolves the named provider (or the default when name is
// empty) into a validated domain.ProviderConfig, reading its credential.
func (s *Settings) Provider(name string) (domain.ProviderConfig, error) {
	if name == "" {
		name = s.Default
	}
	name = strings.ToLower(name)
	p, ok := s.Providers[name]
	if !ok {
		return domain.ProviderConfig{}, &ConfigError{
			Op:  "lookup",
			Err: &MissingKeyError{Key: "providers." + name},
		}
	}

	secret, err := ResolveCredential(p.Credential)
	if err != nil {
		return domain.ProviderConfig{}, err
	}

	cfg := domain.ProviderConfig{
		Kind:       p.kindOr(name),
		Endpoint:   p.Endpoint,
		Credential: secret,
		Timeout:    p.Timeout,
		Retry:      p.Retry,
		Headers:    cloneHeaders(p.Headers),
	}
	if err := cfg.Validate(); err != nil {
		return domain.ProviderConfig{}, err
	}
	return cfg, nil
}

func (p ProviderSettings) kindOr(name string) domain.ProviderKind {
	if p.Kind != "" {
		return domain.ProviderKind(strings.ToLower(p.Kind))
	}
	return domain.ProviderKind(name)
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func toHTTPHeader(h map[string]string) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = []string{v}
	}
	return out
}

// RedactedYAML renders the settings as YAML with anything key-like masked.
func (s *Settings) RedactedYAML() ([]byte, error) {
	view := struct {
		Default   string                      `yaml:"default"`
		Providers map[string]ProviderSettings `yaml:"providers"`
		Logging   LoggingConfig               `yaml:"logging"`
		Cache     CacheConfig                 `yaml:"cache"`
	}{
		Default:   s.Default,
		Providers: make(map[string]ProviderSettings, len(s.Providers)),
		Logging:   s.Logging,
		Cache:     s.Cache,
	}
	for _, name := range s.ProviderNames() {
		p := s.Providers[name]
		p.Kind = string(p.kindOr(name))
		if len(p.Headers) > 0 {
			p.Headers = security.RedactHeaders(toHTTPHeader(p.Headers))
		}
		view.Providers[name] = p
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return nil, &ConfigError{Op: "render", Err: err}
	}
	return []byte(security.Redact(string(out))), nil
}

// KnownKinds lists the provider kinds as strings, for messages and defaults.
func KnownKinds() []string {
	kinds := domain.AllKinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	slices.Sort(out)
	return out
}
