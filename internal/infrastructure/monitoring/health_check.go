package monitoring

import (
	"context"
	"sync"
	"time"
)

// HealthChecker aggregates the named readiness probes served on /ready.
// Probes run on demand per request; each gets its own timeout so one hung
// dependency cannot stall the whole report.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

// HealthCheck is a single named probe.
type HealthCheck struct {
	Name    string
	Probe   func(ctx context.Context) error
	Timeout time.Duration
}

// HealthStatus is the JSON shape of a readiness report.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, probe func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, HealthCheck{Name: name, Probe: probe, Timeout: timeout})
}

// CheckAll runs every probe and reports per-check results. Any failing probe
// marks the whole status unhealthy.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}
	for _, check := range checks {
		if err := runProbe(ctx, check); err != nil {
			status.Status = "unhealthy"
			status.Checks[check.Name] = err.Error()
			continue
		}
		status.Checks[check.Name] = "healthy"
	}
	return status
}

func runProbe(ctx context.Context, check HealthCheck) error {
	ctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()
	return check.Probe(ctx)
}

// IsReady reports whether every probe passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
