// Package gateway exposes the adapter registry over HTTP.
//
// DESIGN: Every registered adapter is bound under /api/{prefix}/ for each of
// its prefixes (underscores become hyphens). The operations bound and their
// HTTP verbs come from the adapter's Identity.MethodsToBind. Handlers only
// decode, call the adapter and write a NormalizedResponse; all semantics
// live in internal/adapters and internal/dispatch.
//
// FILES:
//   - gateway.go:    Gateway struct, New(), Start(), Shutdown()
//   - routes.go:     Route binding and per-operation handlers
//   - watch.go:      Websocket task watch
//   - middleware.go: Recovery, rate limiting, logging, security headers, auth
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/askcos/prediction-gateway/internal/adapters"
	"github.com/askcos/prediction-gateway/internal/config"
	"github.com/askcos/prediction-gateway/internal/dispatch"
	"github.com/askcos/prediction-gateway/internal/monitoring"
)

const (
	// HeaderRequestID carries the request ID in and out of the gateway.
	HeaderRequestID = "X-Request-ID"

	// MaxRequestBodySize bounds request bodies (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// MaxRateLimitBuckets bounds the number of tracked client IPs.
	MaxRateLimitBuckets = 10000

	// WatchPollInterval is how often a websocket watch polls the task.
	WatchPollInterval = 250 * time.Millisecond
)

// Deps are the collaborators the gateway serves.
type Deps struct {
	Registry      *adapters.Registry
	Broker        *dispatch.Broker
	Workers       *dispatch.Workers
	Logger        *monitoring.Logger
	Metrics       *monitoring.Metrics
	Alerts        *monitoring.AlertManager
	RequestLogger *monitoring.RequestLogger
}

// Gateway is the HTTP front of the prediction gateway.
type Gateway struct {
	cfg           config.ServerConfig
	registry      *adapters.Registry
	broker        *dispatch.Broker
	workers       *dispatch.Workers
	logger        *monitoring.Logger
	metrics       *monitoring.Metrics
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	rateLimiter   *rateLimiter
	tokens        map[string]struct{}
	origins       map[string]struct{}
	serveMetrics  bool
	pollInterval  time.Duration

	handler http.Handler
	server  *http.Server
}

// New builds the gateway and binds every registered adapter.
func New(cfg *config.Config, deps Deps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = monitoring.Nop()
	}
	g := &Gateway{
		cfg:           cfg.Server,
		registry:      deps.Registry,
		broker:        deps.Broker,
		workers:       deps.Workers,
		logger:        logger.Component("gateway"),
		metrics:       deps.Metrics,
		alerts:        deps.Alerts,
		requestLogger: deps.RequestLogger,
		tokens:        make(map[string]struct{}, len(cfg.Server.APITokens)),
		origins:       make(map[string]struct{}, len(cfg.Server.AllowedOrigins)),
		serveMetrics:  cfg.Monitoring.MetricsEnabled,
		pollInterval:  WatchPollInterval,
	}
	if g.alerts == nil {
		g.alerts = monitoring.NewAlertManager(logger, cfg.Monitoring.Alerts)
	}
	if g.requestLogger == nil {
		g.requestLogger = monitoring.NewRequestLogger(logger)
	}
	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit)
	}
	for _, tok := range cfg.Server.APITokens {
		if tok != "" {
			g.tokens[tok] = struct{}{}
		}
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		g.origins[origin] = struct{}{}
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	h = g.rateLimit(h)
	h = g.panicRecovery(h)
	g.handler = h

	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return g
}

// Handler returns the full middleware chain and routes.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Start listens on the configured port and blocks until the server stops.
// It returns http.ErrServerClosed after Shutdown.
func (g *Gateway) Start() error {
	g.logger.Info().Int("port", g.cfg.Port).Msg("gateway listening")
	return g.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.rateLimiter != nil {
		g.rateLimiter.stop()
	}
	return g.server.Shutdown(ctx)
}
