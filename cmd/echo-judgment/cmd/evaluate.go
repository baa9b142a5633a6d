package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/echo-judgment/internal/config"
	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// Exit codes of the evaluate command.
const (
	exitAllow  = 0
	exitReview = 2 // HOLD or INDETERMINATE
	exitStop   = 3
)

var (
	evalCommand    string
	evalOutput     string
	evalOutputFile string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one command and model output against the policy",
	Long: `Evaluate a plugin command and its model output against the stop policy.

The model output is a JSON object given with --output, read from --output-file,
or read from stdin when neither is set. The decision is printed as JSON.

Exit codes:
  0  ALLOW
  2  HOLD or INDETERMINATE
  3  STOP
  1  error`,
	Example: `  echo-judgment evaluate --command triage-nda --output '{"classification":"GREEN"}'
  plugin-run | echo-judgment evaluate --command triage-nda`,
	SilenceUsage: true,
	RunE:         runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalCommand, "command", "", "plugin command name (required)")
	evaluateCmd.Flags().StringVar(&evalOutput, "output", "", "model output as a JSON object")
	evaluateCmd.Flags().StringVar(&evalOutputFile, "output-file", "", "file containing the model output JSON")
	_ = evaluateCmd.MarkFlagRequired("command")
	evaluateCmd.MarkFlagsMutuallyExclusive("output", "output-file")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	raw, err := readModelOutput(evalOutput, evalOutputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	output, err := decodeModelOutput(raw)
	if err != nil {
		return err
	}

	state, err := evaluateOnce(cmd.Context(), cfg, evalCommand, output, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	if code := exitCodeFor(state); code != exitAllow {
		return &exitCodeError{code: code}
	}
	return nil
}

// evaluateOnce wires a gate, evaluates once and writes the result as JSON to w.
// A stdout audit sink writes to auditOut so w carries only the decision.
func evaluateOnce(ctx context.Context, cfg *config.Config, command string, output judgment.ModelOutput, w, auditOut io.Writer, logger *slog.Logger) (judgment.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := newGate(cfg, logger, auditOut)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := g.Close(); err != nil {
			logger.Warn("failed to release resources", "error", err)
		}
	}()

	res, err := g.svc.Evaluate(ctx, command, output)
	if err != nil {
		return "", err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return "", fmt.Errorf("failed to write decision: %w", err)
	}
	return res.Decision.State, nil
}

// readModelOutput returns the raw model output from the flag, the file or stdin.
func readModelOutput(inline, file string, stdin io.Reader) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		// #nosec G304 -- path is an operator-supplied CLI argument.
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read output file: %w", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
}

// decodeModelOutput parses a JSON object. Empty input is an empty output record.
// Numbers are kept as json.Number so they are echoed and matched exactly.
func decodeModelOutput(raw []byte) (judgment.ModelOutput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return judgment.ModelOutput{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var output judgment.ModelOutput
	if err := dec.Decode(&output); err != nil {
		return nil, fmt.Errorf("model output must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("model output must be a single JSON object")
	}
	if output == nil {
		output = judgment.ModelOutput{}
	}
	return output, nil
}

// exitCodeFor maps a decision state to the evaluate exit code.
func exitCodeFor(state judgment.State) int {
	switch state {
	case judgment.StateAllow:
		return exitAllow
	case judgment.StateStop:
		return exitStop
	default:
		return exitReview
	}
}
