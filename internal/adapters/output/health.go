package output

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vigilsec/vigil/internal/domain"
)

type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Status        string        `json:"status"`
	QueueLength   int           `json:"queue_length"`
	QueueCapacity int           `json:"queue_capacity"`
	Utilization   float64       `json:"utilization_percent"`
	Uptime        time.Duration `json:"uptime_ns"`
	Reason        string        `json:"reason,omitempty"`
}

// ResponsePipeline is the slice of the response engine the health check
// needs: queue occupancy and liveness.
type ResponsePipeline interface {
	QueueLength() int
	QueueCapacity() int
	IsRunning() bool
}

type HealthChecker struct {
	pipeline ResponsePipeline
	metrics  *domain.MonitorMetrics

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
}

type HealthCheckerConfig struct {
	CheckInterval time.Duration
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		CheckInterval: 5 * time.Second,
	}
}

func NewHealthChecker(pipeline ResponsePipeline, metrics *domain.MonitorMetrics, config HealthCheckerConfig) *HealthChecker {
	return &HealthChecker{
		pipeline:      pipeline,
		metrics:       metrics,
		checkInterval: config.CheckInterval,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.lastCheckMu.RLock()
	if time.Since(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	status := h.performCheck(ctx)

	h.lastCheckMu.Lock()
	h.lastCheck = status
	h.lastCheckTime = time.Now()
	h.lastCheckMu.Unlock()

	return status
}

func (h *HealthChecker) performCheck(_ context.Context) HealthStatus {
	status := HealthStatus{}
	if h.metrics != nil {
		status.Uptime = time.Since(h.metrics.StartTime)
	}

	if h.pipeline == nil || !h.pipeline.IsRunning() {
		status.Healthy = false
		status.Status = "OFFLINE"
		status.Reason = "response engine not running"
		return status
	}

	status.QueueLength = h.pipeline.QueueLength()
	status.QueueCapacity = h.pipeline.QueueCapacity()
	if status.QueueCapacity > 0 {
		status.Utilization = float64(status.QueueLength) / float64(status.QueueCapacity) * 100
	}

	if status.Utilization >= 95 {
		status.Healthy = false
		status.Status = "SATURATED"
		status.Reason = fmt.Sprintf("response queue utilization at %.1f%%", status.Utilization)
		return status
	}

	status.Healthy = true
	if status.Utilization >= 80 {
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("response queue utilization elevated at %.1f%%", status.Utilization)
	} else {
		status.Status = "HEALTHY"
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	fmt.Fprintf(w, `{"healthy":%t,"status":"%s","queue_length":%d,"queue_capacity":%d,"utilization_percent":%.1f,"uptime_seconds":%.0f`,
		status.Healthy,
		status.Status,
		status.QueueLength,
		status.QueueCapacity,
		status.Utilization,
		status.Uptime.Seconds(),
	)

	if status.Reason != "" {
		fmt.Fprintf(w, `,"reason":"%s"`, status.Reason)
	}
	fmt.Fprint(w, "}")
}
