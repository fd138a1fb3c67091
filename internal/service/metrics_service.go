package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface,
// outbound collaborator calls and the publish workflow.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
	workflowActions    *prometheus.CounterVec
	bulkPaths          *prometheus.CounterVec
	bulkPolls          prometheus.Histogram
	notifications      *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	remoteCallDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remote_call_duration_seconds",
		Help:    "Duration of calls to external collaborators",
		Buckets: prometheus.DefBuckets,
	}, []string{"collaborator", "operation", "status"})

	workflowActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_workflow_actions_total",
		Help: "Publish request lifecycle actions by outcome",
	}, []string{"action", "outcome"})

	bulkPaths := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_publish_paths_total",
		Help: "Paths processed by bulk publish jobs by outcome",
	}, []string{"outcome"})

	bulkPolls := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_publish_poll_iterations",
		Help:    "Number of status polls needed per bulk publish job",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 30},
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications sent by kind and outcome",
	}, []string{"kind", "outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, remoteCallDuration, workflowActions, bulkPaths, bulkPolls, notifications, cacheLatency, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		remoteCallDuration: remoteCallDuration,
		workflowActions:    workflowActions,
		bulkPaths:          bulkPaths,
		bulkPolls:          bulkPolls,
		notifications:      notifications,
		cacheLatency:       cacheLatency,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveRemoteCall records the duration of a collaborator call. Status 0
// means the call failed before a response arrived.
func (m *MetricsService) ObserveRemoteCall(collaborator, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.remoteCallDuration.WithLabelValues(collaborator, operation, label).Observe(duration.Seconds())
}

// RecordAction counts a lifecycle action outcome (success, failed or skipped).
func (m *MetricsService) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.workflowActions.WithLabelValues(action, outcome).Inc()
}

// RecordBulkOutcome counts published and failed paths of one bulk job.
func (m *MetricsService) RecordBulkOutcome(published, failed, polls int) {
	if m == nil {
		return
	}
	m.bulkPaths.WithLabelValues("published").Add(float64(published))
	m.bulkPaths.WithLabelValues("failed").Add(float64(failed))
	m.bulkPolls.Observe(float64(polls))
}

// RecordNotification counts a notification attempt.
func (m *MetricsService) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
