package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rakanrepo/slevenback/internal/repositories"
)

// BuildInfo identifies the running binary for health reporting.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers exposes the liveness and readiness endpoints.
type HealthHandlers struct {
	build   BuildInfo
	checker repositories.HealthRepository
	clock   func() time.Time
}

// HealthOption customises HealthHandlers construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthChecker wires the dependency health checker used by Readyz.
func WithHealthChecker(checker repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.checker = checker
	}
}

// WithHealthClock injects a custom clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// Readyz probes downstream dependencies and reports per-check status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	status := "ok"
	checks := map[string]any{}
	details := []string{}

	if h.checker != nil {
		results, err := h.checker.Check(r.Context())
		if err != nil {
			status = "degraded"
			details = append(details, "health: "+err.Error())
		}
		for _, result := range results {
			checkStatus := "ok"
			if !result.Healthy {
				checkStatus = "degraded"
				status = "degraded"
				details = append(details, result.Component+": "+result.Detail)
			}
			entry := map[string]any{
				"status":    checkStatus,
				"checkedAt": result.CheckedAt.UTC().Format(time.RFC3339),
			}
			if result.Detail != "" && !result.Healthy {
				entry["error"] = result.Detail
			}
			checks[result.Component] = entry
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	payload := map[string]any{
		"status":    status,
		"checks":    checks,
		"details":   details,
		"timestamp": now.UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
