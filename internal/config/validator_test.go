package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a defaulted Config for testing.
func minimalValidConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_DefaultConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_AuditOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		output string
		valid  bool
	}{
		{"stdout", true},
		{"file:///var/log/echo/trace.jsonl", true},
		{"file://proof/decision.trace.jsonl", true},
		{"sqlite:///var/lib/echo/audit.db", true},
		{"file://", false},
		{"sqlite://", false},
		{"stderr", false},
		{"postgres://db/audit", false},
		{"sqlite://audit.db?mode=ro", false},
		{"sqlite://audit#1.db", false},
		{"file://trace#1.jsonl", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.output, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			cfg.Audit.Output = tt.output
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
			if !tt.valid && (err == nil || !strings.Contains(err.Error(), "Output")) {
				t.Errorf("Validate() error = %v, want audit output error", err)
			}
		})
	}
}

func TestParseAuditOutput(t *testing.T) {
	t.Parallel()

	scheme, path, err := ParseAuditOutput("sqlite://audit/trail.db")
	if err != nil || scheme != "sqlite" || path != "audit/trail.db" {
		t.Errorf("ParseAuditOutput() = %q, %q, %v", scheme, path, err)
	}
	scheme, path, err = ParseAuditOutput("stdout")
	if err != nil || scheme != "stdout" || path != "" {
		t.Errorf("ParseAuditOutput(stdout) = %q, %q, %v", scheme, path, err)
	}
}

func TestValidate_CELRequiresExpression(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Intent.Classifier = "cel"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Expression is required") {
		t.Errorf("Validate() error = %v, want expression required", err)
	}

	cfg.Intent.Expression = `command == "x"`
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidClassifier(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Intent.Classifier = "llm"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must be one of") {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.LogLevel = "trace"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for log level trace")
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for zero config")
	}
	for _, want := range []string{"Policy.Path is required", "Audit.Output is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to contain %q", err.Error(), want)
		}
	}
}

func TestValidate_AllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	cfg.Server.AllowedOrigins = []string{"not a url"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for malformed origin")
	}
}
