package cel

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

func TestIntentClassifier_Evaluates(t *testing.T) {
	t.Parallel()

	output := judgment.ModelOutput{"classification": "GREEN", "confidence": 0.92}

	tests := []struct {
		name    string
		expr    string
		command string
		intent  string
		want    bool
	}{
		{name: "prefix equivalent", expr: `command.startsWith("triage")`, command: "triage-nda", want: true},
		{name: "prefix miss", expr: `command.startsWith("triage")`, command: "draft-nda", want: false},
		{name: "glob", expr: `glob("triage-*", command)`, command: "triage-msa", want: true},
		{name: "intent value", expr: `intent == "approve"`, command: "x", intent: "approve", want: true},
		{name: "output field", expr: `output.confidence > 0.9`, command: "x", want: true},
		{name: "output text", expr: `output_text.contains("GREEN")`, command: "x", want: true},
		{name: "missing key guarded", expr: `has(output.risk) && output.risk == "high"`, command: "x", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewIntentClassifier(tt.expr)
			if err != nil {
				t.Fatalf("NewIntentClassifier(%q) error: %v", tt.expr, err)
			}
			got, err := c.ClassifyIntent(tt.command, output, tt.intent)
			if err != nil {
				t.Fatalf("ClassifyIntent() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ClassifyIntent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewIntentClassifier_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "empty", expr: "", want: "empty"},
		{name: "too long", expr: strings.Repeat("a", maxExpressionLength+1), want: "too long"},
		{name: "too deep", expr: strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1), want: "nesting"},
		{name: "syntax", expr: "command ==", want: "compilation failed"},
		{name: "unknown variable", expr: "tool_name == 'x'", want: "compilation failed"},
		{name: "non bool", expr: `command + "x"`, want: "must return bool"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewIntentClassifier(tt.expr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewIntentClassifier() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestIntentClassifier_PlugsIntoMatcher(t *testing.T) {
	t.Parallel()

	c, err := NewIntentClassifier(`intent == "approve" && command != "triage-draft"`)
	if err != nil {
		t.Fatal(err)
	}
	intent := "approve"
	m := &judgment.Matcher{Classifier: c}
	cond := judgment.Condition{ID: "c", When: judgment.When{ActionIntent: &intent}}

	if ok, _ := m.Matches("sign-nda", nil, cond); !ok {
		t.Error("sign-nda should match a CEL intent that ignores prefixes")
	}
	if ok, _ := m.Matches("triage-draft", nil, cond); ok {
		t.Error("triage-draft excluded by expression")
	}
}

func TestIntentClassifier_DecodedNumbers(t *testing.T) {
	t.Parallel()

	output := judgment.ModelOutput{
		"confidence": json.Number("0.92"),
		"pages":      json.Number("12"),
		"account":    json.Number("9007199254740993"),
		"scores":     []any{json.Number("1"), json.Number("2")},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`output.confidence > 0.9`, true},
		{`output.pages == 12`, true},
		{`output.account == 9007199254740993`, true},
		{`output.scores[1] == 2`, true},
	}
	for _, tt := range tests {
		c, err := NewIntentClassifier(tt.expr)
		if err != nil {
			t.Fatalf("NewIntentClassifier(%q) error: %v", tt.expr, err)
		}
		got, err := c.ClassifyIntent("x", output, "")
		if err != nil {
			t.Fatalf("ClassifyIntent(%q) error: %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}
