package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/journal"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/memory"
	"github.com/warden-platform/warden-core/internal/domain/compliance"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/threat"
	"github.com/warden-platform/warden-core/internal/service"
)

// serverFixture bundles a routed handler with the stores and services
// behind it so tests can seed data and assert side effects.
type serverFixture struct {
	srv     *Server
	handler http.Handler
	users   *memory.MemoryUserStore
	keys    *service.KeyService
	threats *service.ThreatService
	ledger  *service.LedgerService
}

func newTestServer(t *testing.T, opts ...Option) *serverFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jrnl, err := journal.NewFileJournal(journal.JournalConfig{Dir: t.TempDir(), CacheSize: 128}, logger)
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	ledger, err := service.NewLedgerService(context.Background(), jrnl, logger)
	if err != nil {
		t.Fatalf("NewLedgerService() error: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	users := memory.NewUserStore()
	roles := memory.NewRoleStore()
	keys := service.NewKeyService(memory.NewKeyStore(), users, logger)
	access := service.NewAccessService(users, roles, logger)
	threats := service.NewThreatService(threat.NewDetector(threat.WithMaxFailedAuth(2)), logger)
	decisions := service.NewDecisionService(users, keys, access, threats, ledger, logger)

	reporter := compliance.NewReporter(compliance.Config{
		GatewayHost:         "127.0.0.1",
		SandboxEnabled:      true,
		PolicyEngineEnabled: true,
		AuditLoggingEnabled: true,
	}, compliance.WithVerifier(ledger))
	comp := service.NewComplianceService(reporter, logger)

	srv := NewServer(decisions, ledger, threats, comp, keys, access, users,
		append([]Option{
			WithLogger(logger),
			WithHealthChecker(NewHealthChecker(ledger, nil, threats, "test")),
		}, opts...)...)

	reg := prometheus.NewRegistry()
	srv.metrics = NewMetrics(reg)

	return &serverFixture{
		srv:     srv,
		handler: srv.handler(reg),
		users:   users,
		keys:    keys,
		threats: threats,
		ledger:  ledger,
	}
}

// seedUser inserts an active user whose id doubles as its username.
func seedUser(t *testing.T, users identity.Store, id, role string) *identity.User {
	t.Helper()

	user := &identity.User{
		ID:        id,
		Username:  id,
		RoleName:  role,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		Channels:  map[string]string{},
		Metadata:  map[string]string{},
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

// do routes one request through the full middleware chain.
func (f *serverFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestServer(t, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.srv.Start(ctx) }()

	// Let the listener come up before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var health HealthResponse
	decodeBody(t, rec, &health)
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["ledger"] != "ok" {
		t.Errorf(`Checks["ledger"] = %q, want ok`, health.Checks["ledger"])
	}
	if health.Version != "test" {
		t.Errorf("Version = %q, want test", health.Version)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)

	// One API request so the HTTP counters have a sample.
	f.do(t, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "warden_http_requests_total") {
		t.Error("exposition is missing warden_http_requests_total")
	}
}

func TestFavicon(t *testing.T) {
	t.Parallel()

	f := newTestServer(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("GET /favicon.ico = %d, want 204", rec.Code)
	}
}
