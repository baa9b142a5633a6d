package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Audit output schemes.
const (
	OutputStdout = "stdout"
	SchemeFile   = "file://"
	SchemeSQLite = "sqlite://"
)

// RegisterCustomValidators registers config-specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	return nil
}

// validateAuditOutput accepts "stdout", "file://<path>" or "sqlite://<path>".
// Relative paths are resolved against the working directory.
func validateAuditOutput(fl validator.FieldLevel) bool {
	_, _, err := ParseAuditOutput(fl.Field().String())
	return err == nil
}

// ParseAuditOutput splits an audit output URI into its scheme and path.
// The scheme is "stdout", "file" or "sqlite".
func ParseAuditOutput(output string) (scheme, path string, err error) {
	switch {
	case output == OutputStdout:
		return "stdout", "", nil
	case strings.HasPrefix(output, SchemeFile):
		path = strings.TrimPrefix(output, SchemeFile)
		scheme = "file"
	case strings.HasPrefix(output, SchemeSQLite):
		path = strings.TrimPrefix(output, SchemeSQLite)
		scheme = "sqlite"
	default:
		return "", "", fmt.Errorf("invalid audit output %q (must be 'stdout', 'file://<path>' or 'sqlite://<path>')", output)
	}
	if path == "" {
		return "", "", fmt.Errorf("audit output %q has an empty path", output)
	}
	if scheme == "sqlite" && strings.ContainsAny(path, "?#") {
		return "", "", fmt.Errorf("audit output %q: sqlite path must not contain '?' or '#'", output)
	}
	return scheme, path, nil
}

// Validate validates the Config using struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'file://<path>' or 'sqlite://<path>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
