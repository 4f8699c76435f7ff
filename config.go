package unillm

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hpn/hpn-unillm/internal/cache"
	"github.com/hpn/hpn-unillm/internal/config"
	"github.com/hpn/hpn-unillm/internal/logging"
)

// Settings is the loaded configuration. Provider(name) turns one entry into
// a ProviderConfig, resolving its credential reference.
type Settings = config.Settings

// ProviderSettings is one provider entry as written in the config file.
type ProviderSettings = config.ProviderSettings

// LoggingConfig selects level, format and output of the library logger.
type LoggingConfig = config.LoggingConfig

// CacheConfig toggles the response cache built by NewFromSettings.
type CacheConfig = config.CacheConfig

// ResponseCache holds successful non-streaming responses for a TTL.
type ResponseCache = cache.ResponseCache

// NewResponseCache creates a ResponseCache; pass it to WithResponseCache.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return cache.New(cache.WithTTL(ttl))
}

// LoadConfig reads unillm.yaml (from path, or the default search paths when
// path is empty) overlaid with UNILLM_* environment variables.
func LoadConfig(path string) (*Settings, error) {
	return config.Load(path)
}

// DefaultSettings returns the process-wide settings, loaded once from the
// file named by UNILLM_CONFIG or the default search paths.
func DefaultSettings() (*Settings, error) {
	return config.GetConfig()
}

// DefaultProvider resolves name (the configured default when empty) from
// DefaultSettings.
func DefaultProvider(name string) (ProviderConfig, error) {
	settings, err := DefaultSettings()
	if err != nil {
		return ProviderConfig{}, err
	}
	return settings.Provider(name)
}

// Config error predicates. A rejected config file carries a
// *ValidationError; an unknown provider name or an unset credential variable
// carries a MissingKeyError. Settings.Provider reports a malformed
// credential reference with an InvalidValueError.
var (
	IsValidationError   = config.IsValidationError
	IsMissingKeyError   = config.IsMissingKeyError
	IsInvalidValueError = config.IsInvalidValueError
)

// NewFromSettings builds a Facade that logs as settings.Logging describes
// and, when settings.Cache is enabled, caches completions. The returned close
// function releases the log file and stops the cache sweeper.
func NewFromSettings(settings *Settings, opts ...Option) (*Facade, func() error, error) {
	logger, closer, err := logging.New(settings.Logging)
	if err != nil {
		return nil, nil, &ConfigError{Op: "logging", Err: err}
	}

	base := []Option{WithLogger(logger)}
	closeAll := closer.Close
	if settings.Cache.Enabled {
		rc := cache.New(cache.WithTTL(settings.Cache.TTL), cache.WithLogger(logger))
		base = append(base, WithResponseCache(rc))
		closeAll = func() error {
			return errors.Join(rc.Close(), closer.Close())
		}
	}

	f := New(append(base, opts...)...)
	if dump, err := settings.RedactedYAML(); err == nil {
		logger.Debug("configuration loaded",
			slog.String("config_file", settings.ConfigFile()),
			slog.Any("providers", settings.ProviderNames()),
			slog.String("settings", string(dump)),
		)
	}
	return f, closeAll, nil
}
