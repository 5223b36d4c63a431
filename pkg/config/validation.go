package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration for errors using the struct validation
// tags, plus cross-field checks the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return err
		}
		msgs := make([]string, 0, len(errs))
		for _, fe := range errs {
			msgs = append(msgs, describeFieldError(fe))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	if cfg.Database.Enabled {
		if err := cfg.Database.Store.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if cfg.Documents.CleanupInterval <= 0 {
		return fmt.Errorf("documents.cleanup_interval must be positive")
	}
	if cfg.Documents.PersistInterval <= 0 {
		return fmt.Errorf("documents.persist_interval must be positive")
	}
	return nil
}

// describeFieldError turns a validator field error into a readable message.
func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Namespace())
	field = strings.TrimPrefix(field, "config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
