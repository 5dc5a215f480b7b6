package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/state"
	"github.com/warden-platform/warden-core/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	ledger     *service.LedgerService
	stateStore *state.FileStateStore
	threats    *service.ThreatService
	version    string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	ledger *service.LedgerService,
	stateStore *state.FileStateStore,
	threats *service.ThreatService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		ledger:     ledger,
		stateStore: stateStore,
		threats:    threats,
		version:    version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// Probe the journal's recent cache - if this errors the ledger cannot
	// serve reads and decisions cannot be sealed.
	if h.ledger != nil {
		if _, err := h.ledger.Recent(ctx, 1); err != nil {
			checks["ledger"] = fmt.Sprintf("error: %v", err)
			healthy = false
		} else {
			checks["ledger"] = "ok"
		}
	} else {
		checks["ledger"] = "not configured"
	}

	// A missing snapshot is reported but not fatal: registries stay
	// authoritative in memory and the next mutation rewrites the file.
	if h.stateStore != nil {
		if h.stateStore.Exists() {
			checks["state"] = "ok"
		} else {
			checks["state"] = "missing"
		}
	} else {
		checks["state"] = "not configured"
	}

	if h.threats != nil {
		// Summary acquires the detector lock - if this hangs, we have a problem
		sum := h.threats.Summary()
		checks["threats"] = fmt.Sprintf("ok: %d blocked", sum.BlockedSources)
	} else {
		checks["threats"] = "not configured"
	}

	// Add Go runtime info
	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable) // 503
		} else {
			w.WriteHeader(http.StatusOK) // 200
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
