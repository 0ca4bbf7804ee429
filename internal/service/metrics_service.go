package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
)

// Poll outcomes recorded by the roster poller.
const (
	PollOutcomeApplied   = "applied"
	PollOutcomeStale     = "stale"
	PollOutcomeDiscarded = "discarded"
	PollOutcomeSkipped   = "skipped"
	PollOutcomeFailed    = "failed"
)

// Session lifecycle events recorded by the controller.
const (
	SessionEventGenerated = "generated"
	SessionEventFailed    = "failed"
	SessionEventResumed   = "resumed"
	SessionEventStopped   = "stopped"
	SessionEventReleased  = "released"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	upstreamLatency *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	rosterSize      prometheus.Histogram

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	pollsApplied         uint64
	pollsDiscarded       uint64
	active               int64
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
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

	upstreamLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "college_api_duration_seconds",
		Help:    "Duration of college API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})

	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_roster_polls_total",
		Help: "Roster polls by outcome",
	}, []string{"trigger", "outcome"})

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_sessions_total",
		Help: "QR session lifecycle events",
	}, []string{"event"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qr_sessions_active",
		Help: "Workspaces currently holding an active QR session",
	})

	rosterSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qr_roster_size",
		Help:    "Distinct students in applied roster polls",
		Buckets: []float64{0, 5, 10, 20, 40, 60, 80, 120, 200},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		upstreamLatency, polls, sessions, activeSessions, rosterSize, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		upstreamLatency: upstreamLatency,
		polls:           polls,
		sessions:        sessions,
		activeSessions:  activeSessions,
		rosterSize:      rosterSize,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
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

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveUpstream records a college API call.
func (m *MetricsService) ObserveUpstream(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstreamLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordPoll counts a roster poll by trigger ("tick" or "manual") and outcome.
func (m *MetricsService) RecordPoll(trigger, outcome string, rosterSize int) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(trigger, outcome).Inc()
	switch outcome {
	case PollOutcomeApplied:
		atomic.AddUint64(&m.pollsApplied, 1)
		m.rosterSize.Observe(float64(rosterSize))
	case PollOutcomeStale, PollOutcomeDiscarded:
		atomic.AddUint64(&m.pollsDiscarded, 1)
	}
}

// RecordSessionEvent counts a lifecycle event.
func (m *MetricsService) RecordSessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

// SessionActivated increments the active session gauge.
func (m *MetricsService) SessionActivated() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.active, 1)
	m.activeSessions.Inc()
}

// SessionDeactivated decrements the active session gauge.
func (m *MetricsService) SessionDeactivated() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.active, -1)
	m.activeSessions.Dec()
}

// Snapshot returns aggregated metrics suitable for a JSON endpoint.
func (m *MetricsService) Snapshot() models.GatewayMetrics {
	if m == nil {
		return models.GatewayMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.GatewayMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		PollsApplied:             atomic.LoadUint64(&m.pollsApplied),
		PollsDiscarded:           atomic.LoadUint64(&m.pollsDiscarded),
		ActiveSessions:           atomic.LoadInt64(&m.active),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
