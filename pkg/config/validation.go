package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors.
//
// Structural constraints (ranges, required fields) are covered by the
// validate struct tags; the scheduling section is additionally checked by
// converting it into governor options, which rejects unknown strategy
// strings, reserved group names, and priority collisions with the
// privileged group.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := cfg.Uploads.UploadOptions()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging format must be text or json, got %q", cfg.Logging.Format)
	}

	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging level must be DEBUG, INFO, WARN or ERROR, got %q", cfg.Logging.Level)
	}

	return nil
}
