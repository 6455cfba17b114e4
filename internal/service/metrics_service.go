package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// Transition results.
const (
	TransitionResultOK       = "ok"
	TransitionResultConflict = "conflict"
	TransitionResultInvalid  = "invalid"
	TransitionResultError    = "error"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
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
	dbQueryDuration *prometheus.HistogramVec

	identifiersMinted *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	attachmentOps     *prometheus.CounterVec
	orphans           *prometheus.CounterVec
	orphansPending    prometheus.Gauge
	notifications     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	mintedCount          uint64
	conflictCount        uint64
	orphanCount          uint64
	notifyFailCount      uint64
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	identifiersMinted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identifiers_minted_total",
		Help: "External identifiers minted per category",
	}, []string{"category"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Workflow transitions by category, target status and result",
	}, []string{"category", "status", "result"})

	attachmentOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attachment_operations_total",
		Help: "Attachment coordinator operations by kind and result",
	}, []string{"operation", "result"})

	orphans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attachment_orphans_total",
		Help: "Blobs left behind by failed remote deletes, by stage",
	}, []string{"stage"})

	orphansPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attachment_orphans_pending",
		Help: "Unresolved orphaned blobs seen by the last sweep",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification deliveries by template and result",
	}, []string{"template", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		identifiersMinted, transitions, attachmentOps, orphans, orphansPending, notifications, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		dbQueryDuration:   dbQueryDuration,
		identifiersMinted: identifiersMinted,
		transitions:       transitions,
		attachmentOps:     attachmentOps,
		orphans:           orphans,
		orphansPending:    orphansPending,
		notifications:     notifications,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// IdentifierMinted counts a committed identifier.
func (m *MetricsService) IdentifierMinted(category models.ApplicationCategory) {
	if m == nil {
		return
	}
	m.identifiersMinted.WithLabelValues(string(category)).Inc()
	atomic.AddUint64(&m.mintedCount, 1)
}

// RecordTransition counts a workflow transition attempt.
func (m *MetricsService) RecordTransition(category models.ApplicationCategory, status models.ApplicationStatus, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(category), string(status), result).Inc()
	if result == TransitionResultConflict {
		atomic.AddUint64(&m.conflictCount, 1)
	}
}

// RecordAttachment counts an attachment coordinator operation.
func (m *MetricsService) RecordAttachment(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.attachmentOps.WithLabelValues(operation, result).Inc()
}

// RecordOrphan counts a blob whose remote delete failed.
func (m *MetricsService) RecordOrphan(stage string) {
	if m == nil {
		return
	}
	m.orphans.WithLabelValues(stage).Inc()
	atomic.AddUint64(&m.orphanCount, 1)
}

// SetOrphansPending publishes the backlog observed by the sweeper.
func (m *MetricsService) SetOrphansPending(n int) {
	if m == nil {
		return
	}
	m.orphansPending.Set(float64(n))
}

// RecordNotification counts a delivery outcome.
func (m *MetricsService) RecordNotification(template string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
		atomic.AddUint64(&m.notifyFailCount, 1)
	}
	m.notifications.WithLabelValues(template, result).Inc()
}

// Snapshot returns aggregated metrics for the ops summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		IdentifiersMinted:        atomic.LoadUint64(&m.mintedCount),
		TransitionConflicts:      atomic.LoadUint64(&m.conflictCount),
		OrphansRecorded:          atomic.LoadUint64(&m.orphanCount),
		NotificationsFailed:      atomic.LoadUint64(&m.notifyFailCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
