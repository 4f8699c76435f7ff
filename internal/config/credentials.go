package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/hpn/hpn-unillm/internal/security"
)

// Credential reference schemes. Literal keys in config are rejected.
const (
	CredentialEnvScheme  = "env:"
	CredentialFileScheme = "file:"
)

var defaultCredentialEnv = map[domain.ProviderKind]string{
	domain.ProviderOpenAI:    "OPENAI_API_KEY",
	domain.ProviderAnthropic: "ANTHROPIC_API_KEY",
	domain.ProviderGemini:    "GEMINI_API_KEY",
}

// DefaultCredentialRef returns the reference used for a built-in provider
// when none is configured.
func DefaultCredentialRef(kind domain.ProviderKind) string {
	if name, ok := defaultCredentialEnv[kind]; ok {
		return CredentialEnvScheme + name
	}
	return ""
}

// checkCredentialRef validates the shape of a reference without reading it.
func checkCredentialRef(ref string) error {
	switch {
	case strings.HasPrefix(ref, CredentialEnvScheme):
		if strings.TrimSpace(strings.TrimPrefix(ref, CredentialEnvScheme)) == "" {
			return &InvalidValueError{Key: "credential", Value: ref}
		}
		return nil
	case strings.HasPrefix(ref, CredentialFileScheme):
		if strings.TrimSpace(strings.TrimPrefix(ref, CredentialFileScheme)) == "" {
			return &InvalidValueError{Key: "credential", Value: ref}
		}
		return nil
	default:
		// Never echo what may be a pasted key.
		return &InvalidValueError{
			Key:           "credential",
			Value:         security.MaskKey(ref),
			AllowedValues: []string{CredentialEnvScheme + "NAME", CredentialFileScheme + "/path"},
		}
	}
}

// ResolveCredential reads the secret a reference points at.
func ResolveCredential(ref string) (domain.Secret, error) {
	if err := checkCredentialRef(ref); err != nil {
		return "", &ConfigError{Op: "resolve_credential", Err: err}
	}

	if name, ok := strings.CutPrefix(ref, CredentialEnvScheme); ok {
		name = strings.TrimSpace(name)
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			return "", &ConfigError{Op: "resolve_credential", Err: &MissingKeyError{Key: name}}
		}
		return domain.Secret(value), nil
	}

	path := strings.TrimSpace(strings.TrimPrefix(ref, CredentialFileScheme))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ConfigError{Op: "resolve_credential", Err: fmt.Errorf("read credential file: %w", err)}
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", &ConfigError{Op: "resolve_credential", Err: &MissingKeyError{Key: path}}
	}
	return domain.Secret(value), nil
}
