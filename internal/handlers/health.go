package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck probes one backing dependency. A non-nil error marks the
// service not ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	started time.Time
	clock   func() time.Time
	checks  []ReadinessCheck
}

// NewHealthHandlers constructs probe handlers with optional readiness checks.
func NewHealthHandlers(checks ...ReadinessCheck) *HealthHandlers {
	return &HealthHandlers{
		started: time.Now(),
		clock:   time.Now,
		checks:  checks,
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.started).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs every registered check and reports per-dependency status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if check.Check == nil {
			continue
		}
		if err := check.Check(ctx); err != nil {
			results[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = "ok"
	}

	payload := map[string]any{"status": "ready"}
	if status != http.StatusOK {
		payload["status"] = "not_ready"
	}
	if len(results) > 0 {
		payload["checks"] = results
	}
	writeJSONResponse(w, status, payload)
}
