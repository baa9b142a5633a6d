package judgment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Criterion keys recognized inside a when block.
const (
	KeyCommand             = "command"
	KeyModelClassification = "model_classification"
	KeyModelOutputContains = "model_output_contains"
	KeyActionIntent        = "action_intent"
)

// KnownCriteria lists the recognized when keys.
var KnownCriteria = []string{KeyCommand, KeyModelClassification, KeyModelOutputContains, KeyActionIntent}

// IntentClassifier decides whether a command carries the intent named by an
// action_intent criterion.
type IntentClassifier interface {
	ClassifyIntent(command string, output ModelOutput, intent string) (bool, error)
}

// DefaultIntentPrefix is the command prefix PrefixHeuristic treats as intent-bearing.
const DefaultIntentPrefix = "triage"

// PrefixHeuristic is a placeholder classifier: any command starting with
// Prefix is taken to carry the intent, whatever the intent value is.
type PrefixHeuristic struct {
	Prefix string
}

// ClassifyIntent implements IntentClassifier.
func (p PrefixHeuristic) ClassifyIntent(command string, _ ModelOutput, _ string) (bool, error) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = DefaultIntentPrefix
	}
	return strings.HasPrefix(command, prefix), nil
}

// Matcher evaluates a single condition. It holds no per-call state.
type Matcher struct {
	Classifier IntentClassifier
	// Strict rejects unknown when keys instead of ignoring them.
	Strict bool
}

// NewMatcher returns a matcher using PrefixHeuristic for action_intent.
func NewMatcher() *Matcher {
	return &Matcher{Classifier: PrefixHeuristic{Prefix: DefaultIntentPrefix}}
}

// Matches reports whether every criterion present in cond.When holds for the
// command and output. A when block with no recognized criteria always matches.
func (m *Matcher) Matches(command string, output ModelOutput, cond Condition) (bool, error) {
	w := cond.When
	if m.Strict && len(w.Unknown) > 0 {
		return false, &MatchEvaluationError{ConditionID: cond.ID, Key: w.Unknown[0]}
	}

	if w.Command != nil && *w.Command != command {
		return false, nil
	}

	var text string
	if w.ModelClassification != nil || w.HasOutputContains {
		text = OutputText(output)
	}

	if w.ModelClassification != nil && !strings.Contains(text, *w.ModelClassification) {
		return false, nil
	}

	if w.HasOutputContains && !containsAnyFold(text, w.ModelOutputContains) {
		return false, nil
	}

	if w.ActionIntent != nil {
		classifier := m.Classifier
		if classifier == nil {
			classifier = PrefixHeuristic{}
		}
		ok, err := classifier.ClassifyIntent(command, output, *w.ActionIntent)
		if err != nil {
			return false, fmt.Errorf("condition %q: classify intent: %w", cond.ID, err)
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// containsAnyFold reports whether any keyword occurs in text, ignoring case.
// An empty keyword list matches nothing.
func containsAnyFold(text string, keywords []string) bool {
	upper := strings.ToUpper(text)
	for _, kw := range keywords {
		if strings.Contains(upper, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}

// OutputText renders the model output as the string that substring criteria
// search. Output is compact JSON with map keys sorted, so the same record
// always yields the same text. Criteria that depend on this layout are
// inherently brittle; a field-path matcher would replace this helper.
func OutputText(output ModelOutput) string {
	if output == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(output); err != nil {
		return fmt.Sprint(map[string]any(output))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
