package output

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
)

type PrometheusMetrics struct {
	requestsAnalyzed prometheus.CounterFunc
	threatsDetected  *prometheus.CounterVec
	analysisTime     prometheus.Histogram
	responsesByRule  *prometheus.CounterVec
	eventsByLevel    *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	activeBlocks     prometheus.Gauge
	memoryUsage      prometheus.GaugeFunc

	internal *domain.MonitorMetrics

	server *http.Server
	mu     sync.Mutex
}

type MetricsConfig struct {
	Port       string
	Path       string
	HealthPath string
	Health     http.Handler
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Port:       ":9090",
		Path:       "/metrics",
		HealthPath: "/ready",
	}
}

func NewPrometheusMetrics(namespace string, internal *domain.MonitorMetrics) *PrometheusMetrics {
	if namespace == "" {
		namespace = "vigil"
	}

	m := &PrometheusMetrics{internal: internal}

	m.requestsAnalyzed = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_analyzed_total",
		Help:      "Total number of requests run through analysis",
	}, func() float64 {
		if internal != nil {
			return float64(internal.RequestsAnalyzed())
		}
		return 0
	})

	m.threatsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "threats_detected_total",
		Help:      "Total threat indicators fired, by indicator type",
	}, []string{"indicator"})

	m.analysisTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "Time spent assessing each request",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 10),
	})

	m.responsesByRule = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "responses_executed_total",
		Help:      "Response rules executed, by rule and outcome",
	}, []string{"rule", "success"})

	m.eventsByLevel = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_by_level_total",
		Help:      "Security events logged, by threat level",
	}, []string{"level"})

	m.queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "response_queue_depth",
		Help:      "Current depth of the response action queue",
	})

	m.activeBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_blocks",
		Help:      "Identifiers currently blocked",
	})

	m.memoryUsage = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current memory usage in bytes",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc)
	})

	return m
}

// IncrementRequests is a no-op here: requests_analyzed_total is a
// CounterFunc reading the shared monitor counter, which the monitor
// increments itself.
func (m *PrometheusMetrics) IncrementRequests() {}

func (m *PrometheusMetrics) IncrementThreats(indicator domain.IndicatorType) {
	m.threatsDetected.WithLabelValues(string(indicator)).Inc()
}

// IncrementResponses records the labeled Prometheus counter only. The
// shared monitor counters are bumped by the response engine itself so
// they stay accurate when the exporter is disabled.
func (m *PrometheusMetrics) IncrementResponses(rule string, success bool) {
	m.responsesByRule.WithLabelValues(rule, strconv.FormatBool(success)).Inc()
}

func (m *PrometheusMetrics) ObserveAnalysisTime(seconds float64) {
	m.analysisTime.Observe(seconds)
}

func (m *PrometheusMetrics) RecordEvent(event *domain.SecurityEvent) {
	m.eventsByLevel.WithLabelValues(string(event.Level)).Inc()
}

func (m *PrometheusMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
	if m.internal != nil {
		m.internal.SetQueueDepth(depth)
	}
}

func (m *PrometheusMetrics) SetBlockedCount(n int) {
	m.activeBlocks.Set(float64(n))
	if m.internal != nil {
		m.internal.SetBlockedSubjects(int64(n))
	}
}

func (m *PrometheusMetrics) StartServer(config MetricsConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(config.Path, promhttp.Handler())
	if config.Health != nil {
		path := config.HealthPath
		if path == "" {
			path = "/ready"
		}
		mux.Handle(path, config.Health)
	}

	m.server = &http.Server{
		Addr:              config.Port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", config.Port).Str("path", config.Path).Msg("Starting Prometheus metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (m *PrometheusMetrics) StopServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}

// NopMetrics satisfies ports.MetricsCollector for tests and demo runs.
type NopMetrics struct{}

func (NopMetrics) IncrementRequests()                    {}
func (NopMetrics) IncrementThreats(domain.IndicatorType) {}
func (NopMetrics) IncrementResponses(string, bool)       {}
func (NopMetrics) RecordEvent(*domain.SecurityEvent)     {}
func (NopMetrics) ObserveAnalysisTime(float64)           {}
func (NopMetrics) SetQueueDepth(int)                     {}
func (NopMetrics) SetBlockedCount(int)                   {}
