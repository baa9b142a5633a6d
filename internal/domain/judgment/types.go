// Package judgment contains the domain types and evaluation logic for
// intercepting automated actions against a stop policy.
package judgment

import (
	"time"
)

// State is the verdict on an intercepted action.
type State string

const (
	// StateAllow lets the intercepted action proceed.
	StateAllow State = "ALLOW"
	// StateHold pauses the action until a human reviews it.
	StateHold State = "HOLD"
	// StateIndeterminate marks the outcome as ambiguous.
	StateIndeterminate State = "INDETERMINATE"
	// StateStop blocks the action outright.
	StateStop State = "STOP"
)

// Valid reports whether s is one of the four judgment states.
func (s State) Valid() bool {
	switch s {
	case StateAllow, StateHold, StateIndeterminate, StateStop:
		return true
	}
	return false
}

// DefaultReason is the reason attached to the fall-through ALLOW decision.
const DefaultReason = "No stop conditions matched"

// Scope describes the command surface a policy governs.
// Only Plugin is read by the engine (at audit time).
type Scope struct {
	Plugin string
	// Metadata keeps any other scope keys from the policy document.
	Metadata map[string]any
}

// Policy is the immutable ruleset for one scope.
// StopConditions are evaluated in order; the first match wins.
type Policy struct {
	PolicyID       string
	Scope          *Scope
	StopConditions []Condition
}

// Condition maps a predicate to a decision state.
type Condition struct {
	ID       string
	Decision State
	Reason   string
	Requires []string
	When     When
}

// When holds the optional criteria of a condition. A nil pointer (or a false
// presence flag) means the criterion is absent and trivially satisfied.
type When struct {
	Command             *string
	ModelClassification *string
	ModelOutputContains []string
	HasOutputContains   bool
	ActionIntent        *string

	// Unknown lists keys that are not recognized criteria, in document order.
	Unknown []string
}

// Empty reports whether no recognized criterion is present.
func (w When) Empty() bool {
	return w.Command == nil && w.ModelClassification == nil &&
		!w.HasOutputContains && w.ActionIntent == nil
}

// ModelOutput is the structured record produced by the upstream action.
type ModelOutput map[string]any

// Decision is the engine's verdict for one evaluation.
type Decision struct {
	State       State       `json:"state"`
	Reason      string      `json:"reason"`
	PolicyID    string      `json:"policy_id,omitempty"`
	ConditionID string      `json:"condition_id,omitempty"`
	Requires    []string    `json:"requires"`
	Timestamp   time.Time   `json:"timestamp"`
	Command     string      `json:"command"`
	ModelOutput ModelOutput `json:"model_output"`
}

// Matched reports whether the decision came from a stop condition.
func (d Decision) Matched() bool {
	return d.ConditionID != ""
}
