package judgment

import (
	"context"
	"time"
)

// Default identity tags stamped on every audit entry.
const (
	DefaultSystem   = "Echo Judgment Adapter"
	DefaultPlatform = "Claude Code"
)

// Identity names the system writing audit entries.
type Identity struct {
	System   string
	Platform string
}

// DefaultIdentity returns the identity used when none is configured.
func DefaultIdentity() Identity {
	return Identity{System: DefaultSystem, Platform: DefaultPlatform}
}

// JudgmentRecord is the verdict block nested in an audit entry.
type JudgmentRecord struct {
	Decision    State  `json:"decision"`
	Reason      string `json:"reason"`
	PolicyID    string `json:"policy_id"`
	ConditionID string `json:"condition_id"`
}

// AuditLogEntry is the persisted form of a rule-triggered decision.
// Field order matches the JSON Lines contract consumed by audit tooling.
type AuditLogEntry struct {
	Timestamp          string         `json:"timestamp"`
	System             string         `json:"system"`
	Platform           string         `json:"platform"`
	Plugin             string         `json:"plugin"`
	Command            string         `json:"command"`
	ModelOutput        ModelOutput    `json:"model_output"`
	Judgment           JudgmentRecord `json:"judgment"`
	RequiredNextAction []string       `json:"required_next_action"`
	Irreversible       bool           `json:"irreversible"`
}

// AuditSink is the append-only destination for audit entries.
// Implementations must serialize concurrent appends.
type AuditSink interface {
	Append(ctx context.Context, entry AuditLogEntry) error
}

// NewAuditLogEntry derives the audit entry for a matched decision.
func NewAuditLogEntry(d Decision, id Identity, plugin string) AuditLogEntry {
	requires := d.Requires
	if requires == nil {
		requires = []string{}
	}
	return AuditLogEntry{
		Timestamp:   d.Timestamp.UTC().Format(time.RFC3339Nano),
		System:      id.System,
		Platform:    id.Platform,
		Plugin:      plugin,
		Command:     d.Command,
		ModelOutput: d.ModelOutput,
		Judgment: JudgmentRecord{
			Decision:    d.State,
			Reason:      d.Reason,
			PolicyID:    d.PolicyID,
			ConditionID: d.ConditionID,
		},
		RequiredNextAction: requires,
		Irreversible:       d.State == StateStop,
	}
}
