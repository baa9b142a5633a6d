package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

// auditSchemaVersion identifies the JSON Lines record layout written to the trail.
const auditSchemaVersion = "1"

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, build date and audit record schema of echo-judgment.`,
	Run: func(cmd *cobra.Command, args []string) {
		writeVersion(cmd.OutOrStdout(), versionShort)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

func writeVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, Version)
		return
	}
	fmt.Fprintf(w, "echo-judgment %s\n", Version)
	fmt.Fprintf(w, "  Commit:       %s\n", Commit)
	fmt.Fprintf(w, "  Built:        %s\n", BuildDate)
	fmt.Fprintf(w, "  Audit schema: v%s\n", auditSchemaVersion)
	fmt.Fprintf(w, "  Go version:   %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
