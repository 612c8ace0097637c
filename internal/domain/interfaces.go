package domain

import (
	"context"
	"time"
)

// LicenseChecker answers whether a pack may be enabled
type LicenseChecker interface {
	HasValidLicense(packID string) bool
}

// FeatureSource exposes the features a pack declares, used to gate trial licenses
type FeatureSource interface {
	TrialFeatures(packID string) ([]string, bool)
}

// EventRecorder receives pack lifecycle events
type EventRecorder interface {
	Record(ctx context.Context, event PackEvent) error
}

// PackEvent is one entry in the pack lifecycle history
type PackEvent struct {
	PackID    string    `json:"pack_id"`
	Action    string    `json:"action"`
	Version   string    `json:"version,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

// Pack lifecycle actions recorded in history
const (
	EventInstalled    = "installed"
	EventEnabled      = "enabled"
	EventDisabled     = "disabled"
	EventUninstalled  = "uninstalled"
	EventExported     = "exported"
	EventRestored     = "restored"
	EventTrialStarted = "trial_started"
	EventLicensed     = "licensed"
	EventLoadFailed   = "load_failed"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusDegraded  = "degraded"
)

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthStatus `json:"components"`
	Metrics    map[string]any          `json:"metrics,omitempty"`
	Uptime     time.Duration           `json:"uptime"`
}

// HealthReporter is implemented by every component the health checker polls
type HealthReporter interface {
	HealthCheck(ctx context.Context) HealthStatus
	GetStats(ctx context.Context) map[string]any
}

// HealthChecker defines the interface for system health monitoring
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, component string) HealthStatus
}
