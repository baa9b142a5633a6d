// Package policyfile loads stop policies from YAML or JSON documents.
package policyfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// document mirrors the policy wire format. Field names are the contract
// between policy authors and the engine.
type document struct {
	PolicyID       string         `yaml:"policy_id" validate:"required"`
	Scope          *scopeDoc      `yaml:"scope" validate:"required"`
	StopConditions []conditionDoc `yaml:"stop_conditions" validate:"dive"`
}

type scopeDoc struct {
	Plugin string         `yaml:"plugin" validate:"required"`
	Extra  map[string]any `yaml:",inline"`
}

type conditionDoc struct {
	ID       string   `yaml:"id" validate:"required"`
	Decision string   `yaml:"decision" validate:"required,oneof=ALLOW HOLD INDETERMINATE STOP"`
	Reason   string   `yaml:"reason" validate:"required"`
	Requires []string `yaml:"requires"`
	When     whenDoc  `yaml:"when"`
}

// whenDoc decodes a when block key by key so that unknown keys survive
// decoding and presence can be told apart from zero values.
type whenDoc struct {
	when judgment.When
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *whenDoc) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: when must be a mapping", value.Line)
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i].Value, value.Content[i+1]
		switch key {
		case judgment.KeyCommand:
			s, err := scalarString(val)
			if err != nil {
				return fmt.Errorf("when.%s: %w", key, err)
			}
			w.when.Command = &s
		case judgment.KeyModelClassification:
			s, err := scalarString(val)
			if err != nil {
				return fmt.Errorf("when.%s: %w", key, err)
			}
			w.when.ModelClassification = &s
		case judgment.KeyModelOutputContains:
			keywords, err := keywordList(val)
			if err != nil {
				return fmt.Errorf("when.%s: %w", key, err)
			}
			w.when.ModelOutputContains = keywords
			w.when.HasOutputContains = true
		case judgment.KeyActionIntent:
			var intent any
			if err := val.Decode(&intent); err != nil {
				return fmt.Errorf("when.%s: %w", key, err)
			}
			s := ""
			if intent != nil {
				s = fmt.Sprint(intent)
			}
			w.when.ActionIntent = &s
		default:
			w.when.Unknown = append(w.when.Unknown, key)
		}
	}
	return nil
}

func scalarString(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d: expected a string", n.Line)
	}
	return n.Value, nil
}

// keywordList accepts a sequence of strings or a single string.
func keywordList(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return []string{}, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: expected a list of strings", n.Line)
	}
}

// toPolicy converts the decoded document into the domain policy.
func (d *document) toPolicy() judgment.Policy {
	p := judgment.Policy{
		PolicyID:       d.PolicyID,
		StopConditions: make([]judgment.Condition, 0, len(d.StopConditions)),
	}
	if d.Scope != nil {
		p.Scope = &judgment.Scope{Plugin: d.Scope.Plugin, Metadata: d.Scope.Extra}
	}
	for _, c := range d.StopConditions {
		requires := c.Requires
		if requires == nil {
			requires = []string{}
		}
		p.StopConditions = append(p.StopConditions, judgment.Condition{
			ID:       c.ID,
			Decision: judgment.State(c.Decision),
			Reason:   c.Reason,
			Requires: requires,
			When:     c.When.when,
		})
	}
	return p
}
