package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/policyfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate [policy-file]",
	Short: "Validate a stop policy document",
	Long: `Load and validate a stop policy without evaluating anything.

The policy path defaults to policy.path from the configuration. On success the
policy id, the number of stop conditions and the document digest are printed,
followed by any when keys the matcher will ignore.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := policyPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Policy.Path
		}
		return validatePolicyFile(path, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validatePolicyFile loads the policy at path and prints a summary to w.
func validatePolicyFile(path string, w io.Writer) error {
	loaded, err := policyfile.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: ok\n", path)
	fmt.Fprintf(w, "  Policy:     %s\n", loaded.Policy.PolicyID)
	fmt.Fprintf(w, "  Plugin:     %s\n", loaded.Policy.Scope.Plugin)
	fmt.Fprintf(w, "  Conditions: %d\n", len(loaded.Policy.StopConditions))
	fmt.Fprintf(w, "  Digest:     %s\n", loaded.Digest)
	for _, warning := range loaded.Warnings() {
		fmt.Fprintf(w, "  warning: %s is not a recognized criterion and will be ignored\n", warning)
	}
	return nil
}
