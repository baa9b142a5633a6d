package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Sentinel-Gate/echo-judgment/internal/service"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker reports the loaded policy and audit destination.
type HealthChecker struct {
	svc         *service.JudgmentService
	auditOutput string
	version     string
}

// NewHealthChecker creates a HealthChecker. svc may be nil.
func NewHealthChecker(svc *service.JudgmentService, auditOutput, version string) *HealthChecker {
	return &HealthChecker{svc: svc, auditOutput: auditOutput, version: version}
}

// Check reports component health. Without a service the gate cannot
// evaluate anything and is unhealthy.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.svc != nil {
		checks["policy"] = fmt.Sprintf("ok: %s (%d conditions)", h.svc.PolicyID(), h.svc.ConditionCount())
		if digest := h.svc.PolicyDigest(); digest != "" {
			checks["policy_digest"] = digest
		}
	} else {
		checks["policy"] = "not loaded"
		healthy = false
	}

	if h.auditOutput != "" {
		checks["audit"] = h.auditOutput
	} else {
		checks["audit"] = "not configured"
	}

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
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
