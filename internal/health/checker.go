package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfassist/tailor/internal/domain"
)

// Component pairs a name with the reporter polled under it
type Component struct {
	Name     string
	Reporter domain.HealthReporter
}

// SystemHealthChecker aggregates the health of registered components
type SystemHealthChecker struct {
	components []Component

	timeout   time.Duration
	startTime time.Time

	// Cached result so frequent polling stays cheap
	lastCheck   time.Time
	lastHealth  domain.SystemHealth
	cacheTTL    time.Duration
	healthMutex sync.Mutex
}

// NewSystemHealthChecker creates a checker over the given components.
// Components with a nil reporter are skipped.
func NewSystemHealthChecker(components ...Component) *SystemHealthChecker {
	kept := make([]Component, 0, len(components))
	for _, c := range components {
		if c.Reporter != nil {
			kept = append(kept, c)
		}
	}
	return &SystemHealthChecker{
		components: kept,
		timeout:    5 * time.Second,
		cacheTTL:   5 * time.Second,
		startTime:  time.Now(),
	}
}

// SetCacheTTL changes how long a health result is reused
func (h *SystemHealthChecker) SetCacheTTL(ttl time.Duration) {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()
	h.cacheTTL = ttl
	h.lastCheck = time.Time{}
}

// CheckHealth implements domain.HealthChecker
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()

	if !h.lastCheck.IsZero() && time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := time.Now()
	overall := domain.HealthStatusHealthy
	components := make(map[string]domain.HealthStatus, len(h.components))
	metrics := make(map[string]any, len(h.components)+1)

	for _, c := range h.components {
		status := c.Reporter.HealthCheck(checkCtx)
		components[c.Name] = status
		overall = aggregateStatus(overall, status.Status)

		if stats := c.Reporter.GetStats(checkCtx); stats != nil {
			metrics[c.Name] = stats
		}
	}

	metrics["system"] = map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	}

	h.lastCheck = now
	h.lastHealth = domain.SystemHealth{
		Status:     overall,
		Timestamp:  now,
		Components: components,
		Metrics:    metrics,
		Uptime:     time.Since(h.startTime),
	}
	return h.lastHealth
}

// CheckComponent implements domain.HealthChecker
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, name string) domain.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	for _, c := range h.components {
		if c.Name == name {
			return c.Reporter.HealthCheck(checkCtx)
		}
	}
	return domain.HealthStatus{
		Status:    domain.HealthStatusUnhealthy,
		Message:   "Unknown component",
		Timestamp: time.Now(),
		Details:   map[string]any{"component": name},
	}
}

// ComponentNames lists the registered components in order
func (h *SystemHealthChecker) ComponentNames() []string {
	names := make([]string, 0, len(h.components))
	for _, c := range h.components {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// IsHealthy reports whether every component is healthy
func (h *SystemHealthChecker) IsHealthy(ctx context.Context) bool {
	return h.CheckHealth(ctx).Status == domain.HealthStatusHealthy
}

// aggregateStatus keeps the worse of two statuses: unhealthy > degraded > healthy
func aggregateStatus(current, component string) string {
	priority := map[string]int{
		domain.HealthStatusHealthy:   0,
		domain.HealthStatusDegraded:  1,
		domain.HealthStatusUnhealthy: 2,
	}
	if priority[component] > priority[current] {
		return component
	}
	return current
}
