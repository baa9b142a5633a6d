package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/echo-judgment/internal/port/inbound"
	"github.com/Sentinel-Gate/echo-judgment/internal/service"
)

// HTTPTransport is the inbound adapter that serves the judgment API over HTTP.
type HTTPTransport struct {
	svc            *service.JudgmentService
	server         *http.Server
	addr           string
	allowedOrigins []string
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *Metrics
	healthChecker  *HealthChecker

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8090" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithRegistry exposes reg on /metrics. Pass the registry the service
// metrics were registered with so one scrape covers both.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.registry = reg
	}
}

// WithHealthChecker sets the health checker for the /healthz endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// NewHTTPTransport creates an HTTP transport serving svc.
func NewHTTPTransport(svc *service.JudgmentService, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		svc:            svc,
		addr:           "127.0.0.1:8090",
		allowedOrigins: []string{},
		logger:         slog.Default(),
		ready:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
	}
	if t.healthChecker == nil {
		t.healthChecker = NewHealthChecker(svc, "", "")
	}
	t.metrics = NewMetrics(t.registry)

	return t
}

// Handler builds the routed, middleware-wrapped handler.
// Middleware order (outermost first): Metrics -> RequestID -> DNSRebinding -> routes.
func (t *HTTPTransport) Handler() http.Handler {
	api := http.NewServeMux()
	(&judgmentHandler{svc: t.svc, logger: t.logger}).routes(api)

	var apiHandler http.Handler = api
	apiHandler = DNSRebindingProtection(t.allowedOrigins)(apiHandler)
	apiHandler = RequestIDMiddleware(t.logger)(apiHandler)
	apiHandler = MetricsMiddleware(t.metrics)(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/healthz", t.healthChecker.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	mux.Handle("/v1/", apiHandler)
	return mux
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	if err := t.registry.Register(collectors.NewGoCollector()); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.listener = ln
	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := t.server
	t.mu.Unlock()
	close(t.ready)

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

// Addr returns the bound listen address once Start has opened the listener.
// It blocks until then or until ctx is done.
func (t *HTTPTransport) Addr(ctx context.Context) (string, error) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener.Addr().String(), nil
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	return t.shutdown()
}

// Compile-time check that HTTPTransport implements the Transport interface.
var _ inbound.Transport = (*HTTPTransport)(nil)
