// Package cmd provides the CLI commands for the echo-judgment gate.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/echo-judgment/internal/config"
)

var (
	cfgFile     string
	policyPath  string
	auditOutput string
	devMode     bool
)

var rootCmd = &cobra.Command{
	Use:   "echo-judgment",
	Short: "Echo Judgment - stop-policy gate for plugin output",
	Long: `Echo Judgment sits between an automated plugin and its effect. It checks
the plugin's output against an ordered stop policy and decides whether the
action may proceed (ALLOW), needs human review (HOLD), is ambiguous
(INDETERMINATE) or must be blocked (STOP). Every rule-triggered decision is
appended to an audit trail.

Quick start:
  1. Write a policy: stop_policy.yaml
  2. Run: echo-judgment demo

Configuration:
  Config is loaded from echo-judgment.yaml in the current directory,
  $HOME/.echo-judgment/, or /etc/echo-judgment/.

  Environment variables can override config values with the ECHO_JUDGMENT_ prefix.
  Example: ECHO_JUDGMENT_AUDIT_OUTPUT=sqlite://proof/audit.db

Commands:
  evaluate    Evaluate one command and model output
  validate    Validate a policy document
  demo        Run the NDA triage demonstration
  serve       Serve the judgment HTTP API
  version     Print version information`,
}

// exitCodeError carries a process exit code without an error message.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./echo-judgment.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "stop policy document (overrides policy.path)")
	rootCmd.PersistentFlags().StringVar(&auditOutput, "audit-output", "", "audit destination: stdout, file://<path> or sqlite://<path>")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig loads the configuration, applies CLI flag overrides and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if policyPath != "" {
		cfg.Policy.Path = policyPath
	}
	if auditOutput != "" {
		cfg.Audit.Output = auditOutput
	}
	if devMode {
		cfg.DevMode = true
	}
}
