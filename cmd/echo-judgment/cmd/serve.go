package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	transporthttp "github.com/Sentinel-Gate/echo-judgment/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/echo-judgment/internal/config"
	"github.com/Sentinel-Gate/echo-judgment/internal/service"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the judgment HTTP API",
	Long: `Serve the judgment API over HTTP.

Endpoints:
  POST /v1/evaluate      Evaluate {command, model_output}
  GET  /v1/audit/recent  Recent audit entries (?limit=N)
  GET  /healthz          Health check
  GET  /metrics          Prometheus metrics`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.http_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.HTTPAddr = serveAddr
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg, os.Stderr)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := serve(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("echo-judgment stopped")
	return nil
}

// serve wires the gate and runs the HTTP transport until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	g, err := newGate(cfg, logger, os.Stdout, service.WithMetrics(service.NewMetrics(reg)))
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Close(); err != nil {
			logger.Warn("failed to release resources", "error", err)
		}
	}()

	logger.Info("policy loaded",
		"policy_id", g.policy.Policy.PolicyID,
		"conditions", len(g.policy.Policy.StopConditions),
		"digest", g.policy.Digest,
		"audit", cfg.Audit.Output,
		"fail_closed", cfg.Audit.FailClosed,
	)

	transport := transporthttp.NewHTTPTransport(g.svc,
		transporthttp.WithAddr(cfg.Server.HTTPAddr),
		transporthttp.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		transporthttp.WithLogger(logger),
		transporthttp.WithRegistry(reg),
		transporthttp.WithHealthChecker(transporthttp.NewHealthChecker(g.svc, cfg.Audit.Output, Version)),
	)
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}
