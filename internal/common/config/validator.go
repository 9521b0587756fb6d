package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Field)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	return sb.String()
}

// Validate checks a configuration that already had its defaults applied.
func Validate(cfg *ConsoleConfig) error {
	var errs []error

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "port", Message: fmt.Sprintf("out of range: %d", cfg.Port)})
	}
	if !strings.HasPrefix(cfg.Prefix, "/") {
		errs = append(errs, &ValidationError{Field: "prefix", Message: fmt.Sprintf("must start with '/': %q", cfg.Prefix)})
	}

	switch cfg.Storage.Type {
	case "memory":
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			errs = append(errs, &ValidationError{Field: "storage.redis.addr", Message: "required for redis storage"})
		}
	case "db":
		if cfg.Storage.Database.Type == "" {
			errs = append(errs, &ValidationError{Field: "storage.database.type", Message: "required for db storage"})
		}
	default:
		errs = append(errs, &ValidationError{Field: "storage.type", Message: fmt.Sprintf("unsupported: %q", cfg.Storage.Type)})
	}

	switch cfg.Auth.Type {
	case "anonymous":
	case "jwt":
		if cfg.Auth.JWT.SecretKey == "" {
			errs = append(errs, &ValidationError{Field: "auth.jwt.secret_key", Message: "required for jwt auth"})
		}
	default:
		errs = append(errs, &ValidationError{Field: "auth.type", Message: fmt.Sprintf("unsupported: %q", cfg.Auth.Type)})
	}

	for _, tag := range append([]string{cfg.I18n.Default}, cfg.I18n.Supported...) {
		if _, err := language.Parse(tag); err != nil {
			errs = append(errs, &ValidationError{Field: "i18n", Message: fmt.Sprintf("invalid language tag %q", tag)})
		}
	}

	return errors.Join(errs...)
}
