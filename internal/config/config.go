// Package config provides configuration types for the judgment gate.
//
// The gate is configured from a single YAML file plus ECHO_JUDGMENT_*
// environment overrides. The stop policy itself lives in a separate
// document referenced by policy.path.
package config

import (
	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/audit"
	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/policyfile"
	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener used by "serve" and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Policy locates the stop policy document.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Audit configures where rule-triggered decisions are recorded.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Intent selects the classifier behind the action_intent criterion.
	Intent IntentConfig `yaml:"intent" mapstructure:"intent"`

	// Tracing enables OpenTelemetry spans around evaluations.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode forces debug logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8090".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins lists browser origins permitted to call the API.
	// Empty blocks every request carrying an Origin header.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"dive,url"`
}

// PolicyConfig locates and interprets the stop policy.
type PolicyConfig struct {
	// Path is the policy document (YAML or JSON). Defaults to "stop_policy.yaml".
	Path string `yaml:"path" mapstructure:"path" validate:"required"`

	// StrictWhen rejects unknown when keys at evaluation time instead of ignoring them.
	StrictWhen bool `yaml:"strict_when" mapstructure:"strict_when"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	// Output specifies where audit entries are written.
	// Valid values: "stdout", "file://<path>" (JSON Lines) or "sqlite://<path>".
	// Defaults to "file://proof/decision.trace.jsonl".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// FailClosed withholds the decision when the audit write fails.
	// Default false: the decision is returned and the failure logged as a warning.
	FailClosed bool `yaml:"fail_closed" mapstructure:"fail_closed"`

	// System and Platform are the identity tags stamped on every entry.
	System   string `yaml:"system" mapstructure:"system" validate:"required"`
	Platform string `yaml:"platform" mapstructure:"platform" validate:"required"`

	// CacheSize is the number of recent entries kept for GET /v1/audit/recent.
	// Defaults to 100.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// IntentConfig selects the action_intent classifier.
type IntentConfig struct {
	// Classifier is "prefix" (default) or "cel".
	Classifier string `yaml:"classifier" mapstructure:"classifier" validate:"omitempty,oneof=prefix cel"`

	// Prefix is the command prefix used by the prefix classifier. Defaults to "triage".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// Expression is the CEL expression used by the cel classifier.
	Expression string `yaml:"expression" mapstructure:"expression" validate:"required_if=Classifier cel"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled exports spans to stderr as JSON.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Policy.Path == "" {
		c.Policy.Path = policyfile.DefaultPath
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "file://" + audit.DefaultPath
	}
	if c.Audit.System == "" {
		c.Audit.System = judgment.DefaultSystem
	}
	if c.Audit.Platform == "" {
		c.Audit.Platform = judgment.DefaultPlatform
	}
	if c.Audit.CacheSize == 0 {
		c.Audit.CacheSize = 100
	}

	if c.Intent.Classifier == "" {
		c.Intent.Classifier = "prefix"
	}
	if c.Intent.Prefix == "" {
		c.Intent.Prefix = judgment.DefaultIntentPrefix
	}
}

// Identity returns the audit identity tags.
func (c *Config) Identity() judgment.Identity {
	return judgment.Identity{System: c.Audit.System, Platform: c.Audit.Platform}
}
