package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/spf13/viper"
)

const (
	defaultConfigName = "unillm"
	defaultConfigType = "yaml"
	envPrefix         = "UNILLM"
)

// loadConfig loads the configuration from environment variables and files.
// Priority order (highest to lowest):
// 1. Environment variables (prefixed with UNILLM_)
// 2. unillm.yaml
// 3. Default values
func loadConfig(configPath string) (*Settings, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure Viper
	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)

	// Add config search paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.config/unillm")
		v.AddConfigPath("/etc/unillm")
	}

	// Enable environment variable override
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// A missing file is fine; defaults plus env vars cover the built-in providers.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read config file: %w", err),
			}
		}
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}
	cfg.configFile = v.ConfigFileUsed()
	// viper lowercases map keys but not values.
	cfg.Default = strings.ToLower(cfg.Default)

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Op: "validate", Err: err}
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("default", string(domain.ProviderOpenAI))

	// Built-in providers, one per kind, reading the vendor's usual env var.
	for _, kind := range domain.AllKinds() {
		prefix := "providers." + string(kind) + "."
		v.SetDefault(prefix+"kind", string(kind))
		v.SetDefault(prefix+"endpoint", "")
		v.SetDefault(prefix+"credential", DefaultCredentialRef(kind))
		v.SetDefault(prefix+"timeout", domain.DefaultTimeout)
		v.SetDefault(prefix+"retry.max_attempts", domain.DefaultMaxAttempts)
		v.SetDefault(prefix+"retry.initial_backoff", domain.DefaultInitialBackoff)
		v.SetDefault(prefix+"retry.max_backoff", domain.DefaultMaxBackoff)
		v.SetDefault(prefix+"retry.multiplier", domain.DefaultMultiplier)
	}

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "")

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "5m")
}
