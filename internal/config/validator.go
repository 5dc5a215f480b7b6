package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers Warden-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings like "5m" or "900s"
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration validates a duration string field.
// The value must parse with time.ParseDuration and be positive.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	// Create validator with required struct enabled
	v := validator.New(validator.WithRequiredStructEnabled())

	// Register custom validators
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	// Run struct validation (tags)
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: per-protocol SSO provider requirements
	if err := c.validateSSOProviders(); err != nil {
		return err
	}

	return nil
}

// validateSSOProviders enforces what struct tags cannot express: provider
// names must be unique, OIDC providers need issuer_url and client_id, and
// SAML providers need metadata_url.
func (c *Config) validateSSOProviders() error {
	seen := make(map[string]struct{}, len(c.SSO.Providers))
	for i, p := range c.SSO.Providers {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("sso.providers[%d]: duplicate provider name: %s", i, p.Name)
		}
		seen[p.Name] = struct{}{}

		switch p.Protocol {
		case "oidc":
			if p.IssuerURL == "" {
				return fmt.Errorf("sso.providers[%d] (%s): oidc providers require issuer_url", i, p.Name)
			}
			if p.ClientID == "" {
				return fmt.Errorf("sso.providers[%d] (%s): oidc providers require client_id", i, p.Name)
			}
		case "saml":
			if p.MetadataURL == "" {
				return fmt.Errorf("sso.providers[%d] (%s): saml providers require metadata_url", i, p.Name)
			}
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"5m\" or \"900s\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
