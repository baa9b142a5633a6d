// Package service contains application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/echo-judgment/internal/ctxkey"
	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

const tracerName = "github.com/Sentinel-Gate/echo-judgment/internal/service"

// EvaluationResult is the outcome of one evaluation as seen by callers.
type EvaluationResult struct {
	EvaluationID string            `json:"evaluation_id"`
	Decision     judgment.Decision `json:"decision"`
	// Warning is set when the decision was returned despite a failed audit write.
	Warning string `json:"warning,omitempty"`
}

// recentLister is implemented by sinks that keep recent entries in memory.
type recentLister interface {
	Recent(n int) []judgment.AuditLogEntry
}

// entryLister is implemented by sinks backed by a queryable store.
type entryLister interface {
	Entries(ctx context.Context) ([]judgment.AuditLogEntry, error)
}

// JudgmentService wraps the judgment engine with evaluation ids, logging,
// metrics and tracing. It is safe for concurrent use.
type JudgmentService struct {
	engine  *judgment.Engine
	sink    judgment.AuditSink
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	digest  string
}

// JudgmentServiceOption configures a JudgmentService.
type JudgmentServiceOption func(*JudgmentService)

// WithMetrics records evaluation metrics.
func WithMetrics(m *Metrics) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.metrics = m
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) JudgmentServiceOption {
	return func(s *JudgmentService) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithPolicyDigest records the digest of the loaded policy document.
func WithPolicyDigest(digest string) JudgmentServiceOption {
	return func(s *JudgmentService) {
		s.digest = digest
	}
}

// NewJudgmentService creates a JudgmentService. sink must be the sink the
// engine was built with; it is only read from, for RecentDecisions.
func NewJudgmentService(
	engine *judgment.Engine,
	sink judgment.AuditSink,
	logger *slog.Logger,
	opts ...JudgmentServiceOption,
) *JudgmentService {
	s := &JudgmentService{
		engine: engine,
		sink:   sink,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PolicyID returns the id of the policy being enforced.
func (s *JudgmentService) PolicyID() string {
	return s.engine.Policy().PolicyID
}

// PolicyDigest returns the digest of the policy document, if known.
func (s *JudgmentService) PolicyDigest() string {
	return s.digest
}

// ConditionCount returns the number of stop conditions in the policy.
func (s *JudgmentService) ConditionCount() int {
	return len(s.engine.Policy().StopConditions)
}

// Evaluate resolves command and output against the policy.
//
// When the audit write fails and the engine is fail-open, the decision is
// returned with Warning set and a nil error. When fail-closed, the error
// wraps the *judgment.LoggingError and no result is returned.
func (s *JudgmentService) Evaluate(ctx context.Context, command string, output judgment.ModelOutput) (*EvaluationResult, error) {
	id := evaluationID(ctx)
	ctx, span := s.tracer.Start(ctx, "judgment.Evaluate",
		trace.WithAttributes(
			attribute.String("judgment.evaluation_id", id),
			attribute.String("judgment.command", command),
			attribute.String("judgment.policy_id", s.PolicyID()),
		),
	)
	defer span.End()

	start := time.Now()
	d, err := s.engine.Evaluate(ctx, command, output)
	if s.metrics != nil {
		s.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}

	var warning string
	if err != nil {
		var lerr *judgment.LoggingError
		if !errors.As(err, &lerr) {
			s.countError("match")
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluation failed")
			s.logger.Error("evaluation failed", "evaluation_id", id, "command", command, "error", err)
			return nil, fmt.Errorf("evaluation %s: %w", id, err)
		}

		s.countAuditWrite("error")
		span.RecordError(err)
		if s.engine.FailClosed() {
			s.countError("logging")
			span.SetStatus(codes.Error, "audit write failed")
			s.logger.Error("audit write failed, decision withheld", "evaluation_id", id, "error", err)
			return nil, fmt.Errorf("evaluation %s: %w", id, err)
		}
		s.logger.Warn("audit write failed, returning decision",
			"evaluation_id", id, "state", d.State, "condition_id", d.ConditionID, "error", err)
		warning = err.Error()
	} else if d.Matched() {
		s.countAuditWrite("ok")
	}

	span.SetAttributes(
		attribute.String("judgment.state", string(d.State)),
		attribute.Bool("judgment.matched", d.Matched()),
	)
	if d.Matched() {
		span.SetAttributes(attribute.String("judgment.condition_id", d.ConditionID))
	}
	if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(string(d.State), strconv.FormatBool(d.Matched())).Inc()
	}

	if d.Matched() {
		s.logger.Info("stop condition matched",
			"evaluation_id", id, "command", command, "state", d.State, "condition_id", d.ConditionID)
	} else {
		s.logger.Debug("no stop condition matched", "evaluation_id", id, "command", command)
	}

	return &EvaluationResult{EvaluationID: id, Decision: d, Warning: warning}, nil
}

// RecentDecisions returns up to n of the most recent audit entries, newest
// first. Sinks that cannot be read back yield an empty slice.
func (s *JudgmentService) RecentDecisions(ctx context.Context, n int) ([]judgment.AuditLogEntry, error) {
	if n <= 0 {
		return []judgment.AuditLogEntry{}, nil
	}
	out := []judgment.AuditLogEntry{}
	switch src := s.sink.(type) {
	case recentLister:
		out = append(out, src.Recent(n)...)
	case entryLister:
		entries, err := src.Entries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit entries: %w", err)
		}
		for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

func (s *JudgmentService) countAuditWrite(result string) {
	if s.metrics != nil {
		s.metrics.AuditWritesTotal.WithLabelValues(result).Inc()
	}
}

func (s *JudgmentService) countError(kind string) {
	if s.metrics != nil {
		s.metrics.EvaluationErrors.WithLabelValues(kind).Inc()
	}
}

// evaluationID returns the caller-supplied id from ctx, or a new UUID.
func evaluationID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxkey.EvaluationIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// ContextWithEvaluationID returns a context carrying a caller-supplied evaluation id.
func ContextWithEvaluationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.EvaluationIDKey{}, id)
}
