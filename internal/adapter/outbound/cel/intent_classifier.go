package cel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// IntentClassifier implements judgment.IntentClassifier with a CEL
// expression. The expression sees four variables:
//
//	command      string               the intercepted command name
//	intent       string               the action_intent value from the policy
//	output       map(string, dyn)     the model output record
//	output_text  string               the serialized model output
//
// and must return a bool. Example:
//
//	glob("triage-*", command) && intent == "approve" && output.confidence > 0.8
type IntentClassifier struct {
	expr string
	prg  cel.Program
}

// NewIntentClassifier validates and compiles expr.
func NewIntentClassifier(expr string) (*IntentClassifier, error) {
	if expr == "" {
		return nil, errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return nil, err
	}

	env, err := NewIntentEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create intent environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if t := ast.OutputType().String(); t != "bool" && t != "dyn" {
		return nil, fmt.Errorf("expression must return bool, got %s", t)
	}

	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &IntentClassifier{expr: expr, prg: prg}, nil
}

// Expression returns the source expression.
func (c *IntentClassifier) Expression() string {
	return c.expr
}

// ClassifyIntent implements judgment.IntentClassifier.
func (c *IntentClassifier) ClassifyIntent(command string, output judgment.ModelOutput, intent string) (bool, error) {
	out := map[string]any{}
	for k, v := range output {
		out[k] = celNative(v)
	}
	activation := map[string]any{
		"command":     command,
		"intent":      intent,
		"output":      out,
		"output_text": judgment.OutputText(output),
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := c.prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

// celNative converts json.Number values to int or double so CEL compares them
// numerically. Integers outside int64 stay as their decimal text.
func celNative(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = celNative(e)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = celNative(e)
		}
		return l
	default:
		return v
	}
}

// Compile-time interface verification.
var _ judgment.IntentClassifier = (*IntentClassifier)(nil)
