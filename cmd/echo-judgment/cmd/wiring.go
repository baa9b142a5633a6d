package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/audit"
	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/policyfile"
	"github.com/Sentinel-Gate/echo-judgment/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/echo-judgment/internal/config"
	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
	"github.com/Sentinel-Gate/echo-judgment/internal/service"
)

// gate is a fully wired judgment service plus the resources it owns.
type gate struct {
	svc     *service.JudgmentService
	policy  policyfile.Loaded
	closers []func() error
}

// Close releases the audit sink and tracer resources.
func (g *gate) Close() error {
	var first error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newLogger creates the stderr text logger.
// Priority: DevMode=true -> debug, otherwise use configured log_level.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newGate loads the policy and wires sink, classifier, engine and service.
// auditOut receives audit lines when audit.output is "stdout"; commands whose
// own result goes to stdout pass stderr instead.
func newGate(cfg *config.Config, logger *slog.Logger, auditOut io.Writer, opts ...service.JudgmentServiceOption) (*gate, error) {
	loaded, err := policyfile.Load(cfg.Policy.Path)
	if err != nil {
		return nil, err
	}
	return newGateWithPolicy(cfg, loaded, logger, auditOut, opts...)
}

// newGateWithPolicy wires a gate around an already loaded policy.
func newGateWithPolicy(cfg *config.Config, loaded policyfile.Loaded, logger *slog.Logger, auditOut io.Writer, opts ...service.JudgmentServiceOption) (*gate, error) {
	logger.Debug("policy loaded",
		"policy_id", loaded.Policy.PolicyID,
		"conditions", len(loaded.Policy.StopConditions),
		"digest", loaded.Digest,
		"path", loaded.Path,
	)
	if !cfg.Policy.StrictWhen {
		for _, w := range loaded.Warnings() {
			logger.Warn("unknown when key will be ignored", "field", w)
		}
	}

	g := &gate{policy: loaded}

	sink, closeSink, err := buildSink(cfg, logger, auditOut)
	if err != nil {
		return nil, err
	}
	if closeSink != nil {
		g.closers = append(g.closers, closeSink)
	}

	classifier, err := buildClassifier(cfg)
	if err != nil {
		_ = g.Close()
		return nil, err
	}

	engine, err := judgment.NewEngine(loaded.Policy, sink,
		judgment.WithIntentClassifier(classifier),
		judgment.WithStrictWhen(cfg.Policy.StrictWhen),
		judgment.WithFailClosed(cfg.Audit.FailClosed),
		judgment.WithIdentity(cfg.Identity()),
	)
	if err != nil {
		_ = g.Close()
		return nil, err
	}

	if cfg.Tracing.Enabled {
		tp, shutdown, err := newTracerProvider(os.Stderr)
		if err != nil {
			_ = g.Close()
			return nil, err
		}
		g.closers = append(g.closers, shutdown)
		opts = append(opts, service.WithTracerProvider(tp))
	}

	opts = append(opts, service.WithPolicyDigest(loaded.Digest))
	g.svc = service.NewJudgmentService(engine, sink, logger, opts...)
	return g, nil
}

// buildSink creates the audit sink named by audit.output; "stdout" writes to
// auditOut. The returned close function is nil for sinks that hold no resources.
func buildSink(cfg *config.Config, logger *slog.Logger, auditOut io.Writer) (judgment.AuditSink, func() error, error) {
	scheme, path, err := config.ParseAuditOutput(cfg.Audit.Output)
	if err != nil {
		return nil, nil, err
	}

	switch scheme {
	case "stdout":
		logger.Debug("audit output", "scheme", scheme)
		return memory.NewAuditSinkWithWriter(auditOut, cfg.Audit.CacheSize), nil, nil
	case "sqlite":
		logger.Debug("audit output", "scheme", scheme, "path", path)
		s, err := sqlite.NewAuditSink(sqlite.Config{DBPath: path})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sqlite audit sink: %w", err)
		}
		return s, s.Close, nil
	default:
		logger.Debug("audit output", "scheme", scheme, "path", path)
		return audit.NewJSONLSink(audit.JSONLConfig{Path: path, CacheSize: cfg.Audit.CacheSize}, logger), nil, nil
	}
}

// buildClassifier returns the action_intent classifier named by intent.classifier.
func buildClassifier(cfg *config.Config) (judgment.IntentClassifier, error) {
	if cfg.Intent.Classifier == "cel" {
		c, err := cel.NewIntentClassifier(cfg.Intent.Expression)
		if err != nil {
			return nil, &judgment.ConfigurationError{Field: "intent.expression", Msg: err.Error()}
		}
		return c, nil
	}
	return judgment.PrefixHeuristic{Prefix: cfg.Intent.Prefix}, nil
}

// newTracerProvider exports spans as JSON to w.
func newTracerProvider(w io.Writer) (trace.TracerProvider, func() error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "echo-judgment"),
			attribute.String("service.version", Version),
		)),
	)
	return tp, func() error { return tp.Shutdown(context.Background()) }, nil
}
