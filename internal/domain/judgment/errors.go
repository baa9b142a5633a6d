package judgment

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed or incomplete policy.
// It is fatal: the operator must fix the policy document.
type ConfigurationError struct {
	// Field is the path of the offending field (e.g. "stop_conditions[2].reason").
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "policy configuration: " + e.Msg
	}
	return fmt.Sprintf("policy configuration: %s %s", e.Field, e.Msg)
}

// LoggingError reports an audit sink write failure. The decision it
// accompanies is still valid unless the engine runs fail-closed.
type LoggingError struct {
	Op   string
	Path string
	Err  error
}

func (e *LoggingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("audit %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("audit %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoggingError) Unwrap() error { return e.Err }

// MatchEvaluationError reports a when-block the matcher refuses to evaluate.
// Only produced in strict mode, for criteria it does not recognize.
type MatchEvaluationError struct {
	ConditionID string
	Key         string
}

func (e *MatchEvaluationError) Error() string {
	return fmt.Sprintf("condition %q: unsupported criterion %q", e.ConditionID, e.Key)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsLoggingError reports whether err is or wraps a LoggingError.
func IsLoggingError(err error) bool {
	var le *LoggingError
	return errors.As(err, &le)
}
