package health

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe checks one dependency. A failing optional probe degrades the service
// instead of marking it unhealthy.
type Probe struct {
	Name     string
	Optional bool
	Check    func(ctx context.Context) error
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTimeMs"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"lastChecked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// StatusMap flattens the per-service status for compact responses.
func (o *OverallHealth) StatusMap() map[string]string {
	out := make(map[string]string, len(o.Services))
	for _, s := range o.Services {
		out[s.Name] = s.Status
	}
	return out
}

type HealthChecker struct {
	probes  []Probe
	timeout time.Duration
	logger  *logrus.Logger
	started time.Time
	last    atomic.Pointer[OverallHealth]
}

func NewHealthChecker(logger *logrus.Logger, timeout time.Duration, probes ...Probe) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		probes:  probes,
		timeout: timeout,
		logger:  logger,
		started: time.Now(),
	}
}

func (h *HealthChecker) check(ctx context.Context, p Probe) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	responseTime := time.Since(start).Milliseconds()

	status := StatusHealthy
	errorMsg := ""
	if err != nil {
		status = StatusUnhealthy
		if p.Optional {
			status = StatusDegraded
		}
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", p.Name).Warn("Health check failed")
	}

	return ServiceHealth{
		Name:         p.Name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := make([]ServiceHealth, 0, len(h.probes))
	for _, p := range h.probes {
		services = append(services, h.check(ctx, p))
	}

	overallStatus := StatusHealthy
	for _, service := range services {
		if service.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if service.Status == StatusDegraded {
			overallStatus = StatusDegraded
		}
	}

	result := OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	h.last.Store(&result)
	return result
}

var ErrNoCachedHealth = errors.New("no health check has completed yet")

// CheckCached returns the most recent result without probing.
func (h *HealthChecker) CheckCached() (*OverallHealth, error) {
	last := h.last.Load()
	if last == nil {
		return nil, ErrNoCachedHealth
	}
	cp := *last
	cp.Uptime = time.Since(h.started).Round(time.Second).String()
	return &cp, nil
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.CheckAll(ctx)
			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
