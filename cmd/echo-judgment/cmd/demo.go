package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/policyfile"
	"github.com/Sentinel-Gate/echo-judgment/internal/config"
	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

//go:embed demo_policy.yaml
var demoPolicy []byte

// demoModelOutput is the NDA triage result the demonstration intercepts.
var demoModelOutput = judgment.ModelOutput{
	"classification": "GREEN",
	"confidence":     0.92,
	"summary":        "Mutual NDA, 3-year term, no residuals clause",
	"recommendation": "Low risk - proceed",
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the NDA triage demonstration",
	Long: `Run the NDA triage demonstration: the same plugin output, with and
without a judgment layer. A GREEN classification that would otherwise be
treated as approval is held for human review.

The policy at policy.path is used when it exists; otherwise a built-in NDA
policy is used.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runDemo(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), newLogger(cfg, os.Stderr))
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// runDemo evaluates the demonstration output and prints a report to w.
// A stdout audit sink writes to auditOut.
func runDemo(ctx context.Context, cfg *config.Config, w, auditOut io.Writer, logger *slog.Logger) error {
	loaded, err := policyfile.Load(cfg.Policy.Path)
	if err != nil {
		var cerr *judgment.ConfigurationError
		if !errors.As(err, &cerr) || cerr.Field != "policy.path" || !policyMissing(cfg.Policy.Path) {
			return err
		}
		logger.Info("policy not found, using built-in NDA demo policy", "path", cfg.Policy.Path)
		if loaded, err = policyfile.Parse(demoPolicy); err != nil {
			return err
		}
	}

	g, err := newGateWithPolicy(cfg, loaded, logger, auditOut)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()

	res, err := g.svc.Evaluate(ctx, "triage-nda", demoModelOutput)
	if err != nil {
		return err
	}
	d := res.Decision

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "JUDGMENT LAYER DEMO: NDA Triage")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "\nModel Output: %v\n", demoModelOutput["classification"])
	fmt.Fprintf(w, "Model Recommendation: %v\n", demoModelOutput["recommendation"])
	fmt.Fprintf(w, "\nJudgment Decision: %s\n", d.State)
	fmt.Fprintf(w, "Reason: %s\n", d.Reason)

	if len(d.Requires) > 0 {
		fmt.Fprintln(w, "\nRequired Actions:")
		for _, action := range d.Requires {
			fmt.Fprintf(w, "  - %s\n", action)
		}
	}
	if res.Warning != "" {
		fmt.Fprintf(w, "\nWarning: %s\n", res.Warning)
	}
	if d.Matched() {
		fmt.Fprintf(w, "\nEvidence logged: %s\n", cfg.Audit.Output)
	}
	fmt.Fprintln(w, rule)
	return nil
}

func policyMissing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
