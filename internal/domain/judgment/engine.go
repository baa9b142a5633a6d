package judgment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine resolves an intercepted command against a policy. It is immutable
// after construction and safe for concurrent use; the audit sink is the only
// shared resource it touches.
type Engine struct {
	policy     Policy
	matcher    *Matcher
	sink       AuditSink
	identity   Identity
	failClosed bool
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithIntentClassifier replaces the PrefixHeuristic used for action_intent.
func WithIntentClassifier(c IntentClassifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.matcher.Classifier = c
		}
	}
}

// WithStrictWhen makes unknown when keys fail evaluation with a MatchEvaluationError.
func WithStrictWhen(strict bool) Option {
	return func(e *Engine) {
		e.matcher.Strict = strict
	}
}

// WithFailClosed withholds the decision when the audit write fails.
func WithFailClosed(failClosed bool) Option {
	return func(e *Engine) {
		e.failClosed = failClosed
	}
}

// WithIdentity sets the system/platform tags written to audit entries.
func WithIdentity(id Identity) Option {
	return func(e *Engine) {
		if id.System != "" {
			e.identity.System = id.System
		}
		if id.Platform != "" {
			e.identity.Platform = id.Platform
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates the policy and returns an engine bound to sink.
// A malformed policy yields a *ConfigurationError.
func NewEngine(p Policy, sink AuditSink, opts ...Option) (*Engine, error) {
	if err := ValidatePolicy(p); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("judgment engine: audit sink is required")
	}

	e := &Engine{
		policy:   p,
		matcher:  NewMatcher(),
		sink:     sink,
		identity: DefaultIdentity(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the policy the engine evaluates against.
func (e *Engine) Policy() Policy {
	return e.policy
}

// FailClosed reports whether audit failures withhold the decision.
func (e *Engine) FailClosed() bool {
	return e.failClosed
}

// Evaluate tests the policy's stop conditions in order and returns the
// decision of the first one that matches, or a default ALLOW.
//
// Only matched decisions are appended to the audit sink. If that append
// fails, the returned error is a *LoggingError; unless the engine is
// fail-closed the decision is still returned alongside it.
func (e *Engine) Evaluate(ctx context.Context, command string, output ModelOutput) (Decision, error) {
	for _, cond := range e.policy.StopConditions {
		ok, err := e.matcher.Matches(command, output, cond)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			continue
		}

		d := Decision{
			State:       cond.Decision,
			Reason:      strings.TrimSpace(cond.Reason),
			PolicyID:    e.policy.PolicyID,
			ConditionID: cond.ID,
			Requires:    append([]string{}, cond.Requires...),
			Timestamp:   e.now().UTC(),
			Command:     command,
			ModelOutput: output,
		}

		entry := NewAuditLogEntry(d, e.identity, e.policy.Scope.Plugin)
		if err := e.sink.Append(ctx, entry); err != nil {
			lerr := asLoggingError(err)
			if e.failClosed {
				return Decision{}, lerr
			}
			return d, lerr
		}
		return d, nil
	}

	return Decision{
		State:       StateAllow,
		Reason:      DefaultReason,
		Requires:    []string{},
		Timestamp:   e.now().UTC(),
		Command:     command,
		ModelOutput: output,
	}, nil
}

func asLoggingError(err error) *LoggingError {
	var lerr *LoggingError
	if errors.As(err, &lerr) {
		return lerr
	}
	return &LoggingError{Op: "append", Err: err}
}

// ValidatePolicy checks the structural requirements the engine relies on.
func ValidatePolicy(p Policy) error {
	if strings.TrimSpace(p.PolicyID) == "" {
		return &ConfigurationError{Field: "policy_id", Msg: "is required"}
	}
	if p.Scope == nil {
		return &ConfigurationError{Field: "scope", Msg: "is required"}
	}
	if p.Scope.Plugin == "" {
		return &ConfigurationError{Field: "scope.plugin", Msg: "is required"}
	}

	seen := make(map[string]int, len(p.StopConditions))
	for i, c := range p.StopConditions {
		field := fmt.Sprintf("stop_conditions[%d]", i)
		if c.ID == "" {
			return &ConfigurationError{Field: field + ".id", Msg: "is required"}
		}
		if c.Decision == "" {
			return &ConfigurationError{Field: field + ".decision", Msg: "is required"}
		}
		if !c.Decision.Valid() {
			return &ConfigurationError{
				Field: field + ".decision",
				Msg:   fmt.Sprintf("must be one of ALLOW, HOLD, INDETERMINATE, STOP (got %q)", c.Decision),
			}
		}
		if strings.TrimSpace(c.Reason) == "" {
			return &ConfigurationError{Field: field + ".reason", Msg: "is required"}
		}
		if j, dup := seen[c.ID]; dup {
			return &ConfigurationError{
				Field: field + ".id",
				Msg:   fmt.Sprintf("duplicates stop_conditions[%d].id %q", j, c.ID),
			}
		}
		seen[c.ID] = i
	}
	return nil
}
