package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom
// rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that
// cannot be expressed in tags.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.LDAP.Enabled && cfg.LDAP.MembershipFile == "" {
		return fmt.Errorf("ldap: membership_file is required when ldap is enabled")
	}

	switch cfg.State.Type {
	case "badger":
		if opt, _ := cfg.State.Badger["path"].(string); opt == "" {
			return fmt.Errorf("state: badger.path is required for the badger backend")
		}
	case "s3":
		if opt, _ := cfg.State.S3["bucket"].(string); opt == "" {
			return fmt.Errorf("state: s3.bucket is required for the s3 backend")
		}
		if opt, _ := cfg.State.S3["region"].(string); opt == "" {
			return fmt.Errorf("state: s3.region is required for the s3 backend")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
