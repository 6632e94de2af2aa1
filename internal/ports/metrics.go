package ports

import "github.com/vigilsec/vigil/internal/domain"

// MetricsCollector is the observability sink for the monitor. Implemented
// by the Prometheus adapter; a no-op implementation serves tests.
//
// Thread Safety: all methods MUST be safe for concurrent calls.
type MetricsCollector interface {
	// IncrementRequests counts one analyzed request.
	IncrementRequests()

	// IncrementThreats counts one fired indicator, labeled by type.
	// An analysis may fire several indicators.
	IncrementThreats(indicator domain.IndicatorType)

	// IncrementResponses counts one executed response rule.
	IncrementResponses(rule string, success bool)

	// RecordEvent counts one logged security event, labeled by level.
	RecordEvent(event *domain.SecurityEvent)

	// ObserveAnalysisTime records one analysis duration in seconds.
	ObserveAnalysisTime(seconds float64)

	// SetQueueDepth updates the response queue depth gauge.
	SetQueueDepth(depth int)

	// SetBlockedCount updates the active blocks gauge.
	SetBlockedCount(n int)
}
