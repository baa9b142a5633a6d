package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/echo-judgment/internal/config"
	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

var claudeHookCmd = &cobra.Command{
	Use:           "claude-hook",
	Short:         "Internal: Claude Code PreToolUse hook handler",
	Hidden:        true,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClaudeHook,
}

func init() {
	rootCmd.AddCommand(claudeHookCmd)
}

// claudeHookInput matches the JSON that Claude Code sends to PreToolUse hooks on stdin.
type claudeHookInput struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

// claudeHookOutput is the JSON response format for denying or escalating a tool use.
type claudeHookOutput struct {
	HookSpecificOutput struct {
		HookEventName            string `json:"hookEventName"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	} `json:"hookSpecificOutput"`
}

// hookDebugf writes a debug log line when ECHO_JUDGMENT_HOOK_DEBUG is set.
// It opens/closes the file on each call to keep the function simple and safe
// for a short-lived hook process.
func hookDebugf(format string, args ...interface{}) {
	debugFile := os.Getenv("ECHO_JUDGMENT_HOOK_DEBUG")
	if debugFile == "" {
		return
	}
	// #nosec G304 -- path is operator-supplied via environment.
	f, err := os.OpenFile(debugFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, format+"\n", args...)
}

func runClaudeHook(cmd *cobra.Command, args []string) error {
	failClosed := os.Getenv("ECHO_JUDGMENT_HOOK_FAIL_MODE") == "closed"

	cfg, err := loadConfig()
	if err != nil {
		return claudeHookError(cmd.OutOrStdout(), cmd.ErrOrStderr(), failClosed, err.Error())
	}
	// stdout carries the hook response; audit lines cannot share it.
	if cfg.Audit.Output == config.OutputStdout {
		cfg.Audit.Output = config.SchemeFile + "proof/decision.trace.jsonl"
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	return handleClaudeHook(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), failClosed, logger)
}

// handleClaudeHook evaluates one PreToolUse event read from in. The tool
// name is the command and the tool input is the model output. STOP denies
// the tool use, HOLD and INDETERMINATE ask the user, ALLOW writes nothing.
func handleClaudeHook(ctx context.Context, cfg *config.Config, in io.Reader, out, errOut io.Writer, failClosed bool, logger *slog.Logger) error {
	inputBytes, err := io.ReadAll(in)
	if err != nil {
		return claudeHookError(out, errOut, failClosed, "read stdin: "+err.Error())
	}

	// Only PreToolUse events carry tool_name; allow everything else.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(inputBytes, &raw); err != nil {
		return nil
	}
	if _, hasToolName := raw["tool_name"]; !hasToolName {
		return nil
	}

	var input claudeHookInput
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return claudeHookError(out, errOut, failClosed, "parse input: "+err.Error())
	}

	output := judgment.ModelOutput{}
	if len(input.ToolInput) > 0 {
		if err := decodeJSONNumbers(input.ToolInput, &output); err != nil {
			var v any
			_ = decodeJSONNumbers(input.ToolInput, &v)
			output = judgment.ModelOutput{"value": v}
		}
		if output == nil {
			output = judgment.ModelOutput{}
		}
	}

	hookDebugf("claude-hook invoked: tool=%s policy=%s", input.ToolName, cfg.Policy.Path)

	g, err := newGate(cfg, logger, errOut)
	if err != nil {
		return claudeHookError(out, errOut, failClosed, err.Error())
	}
	defer func() { _ = g.Close() }()

	res, err := g.svc.Evaluate(ctx, input.ToolName, output)
	if err != nil {
		return claudeHookError(out, errOut, failClosed, err.Error())
	}
	d := res.Decision
	hookDebugf("decision=%s condition=%s", d.State, d.ConditionID)

	switch d.State {
	case judgment.StateStop:
		return writeClaudeHookDecision(out, "deny", hookReason(d))
	case judgment.StateHold, judgment.StateIndeterminate:
		return writeClaudeHookDecision(out, "ask", hookReason(d))
	default:
		return nil
	}
}

// hookReason renders the decision for the Claude Code permission prompt.
func hookReason(d judgment.Decision) string {
	reason := fmt.Sprintf("Echo Judgment %s: %s", d.State, d.Reason)
	if len(d.Requires) > 0 {
		reason += " (requires: " + strings.Join(d.Requires, ", ") + ")"
	}
	return reason
}

// writeClaudeHookDecision writes a PreToolUse permission decision to out.
func writeClaudeHookDecision(out io.Writer, decision, reason string) error {
	var output claudeHookOutput
	output.HookSpecificOutput.HookEventName = "PreToolUse"
	output.HookSpecificOutput.PermissionDecision = decision
	output.HookSpecificOutput.PermissionDecisionReason = reason
	return json.NewEncoder(out).Encode(output)
}

// claudeHookError handles errors based on fail mode.
// Fail-closed: deny with error message. Fail-open: log warning, allow.
func claudeHookError(out, errOut io.Writer, failClosed bool, msg string) error {
	if failClosed {
		return writeClaudeHookDecision(out, "deny", "Echo Judgment error: "+msg)
	}
	fmt.Fprintf(errOut, "[echo-judgment] hook warning: %s (fail-open, allowing)\n", msg)
	return nil
}

// decodeJSONNumbers unmarshals data into v keeping numbers as json.Number.
func decodeJSONNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
