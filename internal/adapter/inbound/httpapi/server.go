// Package httpapi exposes the security core over an HTTP listener.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/service"
)

// Server is the inbound adapter that connects the core to the gateway and
// the CLI. It serves the decision API plus the audit, threat, and compliance
// read endpoints, the SSO login flow, and carries the /metrics and /health
// operational routes. A management handler can be mounted under /admin/api/.
type Server struct {
	decisions  *service.DecisionService
	ledger     *service.LedgerService
	threats    *service.ThreatService
	compliance *service.ComplianceService
	keys       *service.KeyService
	access     *service.AccessService
	users      identity.Store
	sso        *service.SSOService

	server       *http.Server
	addr         string
	devMode      bool
	logger       *slog.Logger
	metrics      *Metrics
	health       *HealthChecker
	registry     *prometheus.Registry
	extraHandler http.Handler
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address.
// Default is "127.0.0.1:7700" (localhost only).
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(s *Server) {
		s.health = hc
	}
}

// WithDevMode waives the bearer-key permission guard on the read endpoints
// so a fresh install can be driven before any key exists. The decision
// endpoint is unaffected: its body carries the credential being decided.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithRegistry sets the Prometheus registry exposed on /metrics. Use this to
// share one registry between the server and the core collectors. When unset,
// Start creates a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithSSOService enables the SSO login routes. Without it the /v1/sso and
// /sso/callback endpoints answer 404.
func WithSSOService(sso *service.SSOService) Option {
	return func(s *Server) {
		s.sso = sso
	}
}

// WithExtraHandler mounts an additional handler under /admin/api/,
// typically the management API.
func WithExtraHandler(h http.Handler) Option {
	return func(s *Server) {
		s.extraHandler = h
	}
}

// NewServer creates the core API server over the given services.
func NewServer(
	decisions *service.DecisionService,
	ledger *service.LedgerService,
	threats *service.ThreatService,
	compliance *service.ComplianceService,
	keys *service.KeyService,
	access *service.AccessService,
	users identity.Store,
	opts ...Option,
) *Server {
	s := &Server{
		decisions:  decisions,
		ledger:     ledger,
		threats:    threats,
		compliance: compliance,
		keys:       keys,
		access:     access,
		users:      users,
		addr:       "127.0.0.1:7700",
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	reg := s.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(reg)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.handler(reg),
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting core API server", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down core API server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// handler assembles the route table and the middleware chain.
// Middleware order (outermost first): metrics, request id, real IP,
// then the per-route permission guard.
func (s *Server) handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		mux.Handle("GET /health", s.health.Handler())
	} else {
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(s.logger, w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	// Favicon handler to prevent browser 500 errors.
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// The decision endpoint authenticates through its own body: the subject
	// credential is the thing being decided, so there is no caller guard.
	mux.HandleFunc("POST /v1/decision", s.handleDecide)

	mux.Handle("GET /v1/audit/recent", s.guard(rbac.PermAdminAudit, s.handleAuditRecent))
	mux.Handle("GET /v1/audit/verify", s.guard(rbac.PermAdminAudit, s.handleAuditVerify))
	mux.Handle("GET /v1/audit/summary", s.guard(rbac.PermAdminAudit, s.handleAuditSummary))

	mux.Handle("GET /v1/threats/summary", s.guard(rbac.PermSystemMonitor, s.handleThreatSummary))
	mux.Handle("GET /v1/threats/recent", s.guard(rbac.PermSystemMonitor, s.handleThreatRecent))
	mux.Handle("POST /v1/threats/unblock", s.guard(rbac.PermAdminSystem, s.handleThreatUnblock))

	mux.Handle("GET /v1/compliance/posture", s.guard(rbac.PermAdminAudit, s.handleCompliancePosture))
	mux.Handle("GET /v1/compliance/owasp", s.guard(rbac.PermAdminAudit, s.handleComplianceOWASP))
	mux.Handle("GET /v1/compliance/soc2", s.guard(rbac.PermAdminAudit, s.handleComplianceSOC2))
	mux.Handle("GET /v1/compliance/iso27001", s.guard(rbac.PermAdminAudit, s.handleComplianceISO))
	mux.Handle("POST /v1/compliance/incident", s.guard(rbac.PermAdminAudit, s.handleComplianceIncident))

	// The SSO routes are the login surface: they authenticate end users, so
	// they carry no bearer-key guard of their own.
	if s.sso != nil {
		mux.HandleFunc("GET /v1/sso/providers", s.handleSSOProviders)
		mux.HandleFunc("GET /v1/sso/authorize/{provider}", s.handleSSOAuthorize)
		mux.HandleFunc("GET /sso/callback/{provider}", s.handleSSOCallback)
		mux.HandleFunc("POST /sso/callback/{provider}", s.handleSSOCallback)
	}

	// Management API, when mounted.
	if s.extraHandler != nil {
		mux.Handle("/admin/api/", s.extraHandler)
	}

	var handler http.Handler = mux
	handler = RealIPMiddleware(handler)
	handler = RequestIDMiddleware(s.logger)(handler)
	handler = MetricsMiddleware(s.metrics)(handler)
	return handler
}

// shutdown drains in-flight requests with a bounded timeout.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("core API server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
