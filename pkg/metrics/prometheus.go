// Package metrics provides Prometheus metrics for the evalboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the evalboard service.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Evaluation metrics
	submissions       *prometheus.CounterVec
	scoringLatency    prometheus.Histogram
	binarizations     *prometheus.CounterVec
	evaluationErrors  *prometheus.CounterVec
	submissionScore   prometheus.Histogram
	matchedRows       prometheus.Histogram
	groundTruthLoads  *prometheus.CounterVec
	groundTruthRows   prometheus.Gauge
	duplicatesDropped *prometheus.CounterVec

	// Append-log metrics
	appendOutcomes  *prometheus.CounterVec
	appendAttempts  prometheus.Histogram
	appendConflicts prometheus.Counter
	appendLatency   prometheus.Histogram
	dedupeSkips     prometheus.Counter
	historyRecords  prometheus.Gauge

	// Blob store metrics
	blobRequests       *prometheus.CounterVec
	blobRequestLatency *prometheus.HistogramVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Operational gauges
	activeSessions  prometheus.Gauge
	leaderboardSize prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

const defaultNamespace = "evalboard"

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithNamespace(defaultNamespace), WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		registry:  prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	msBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "submissions_total",
		Help:      "Submissions received, by result (scored, rejected)",
	}, []string{"result"})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "scoring_latency_milliseconds",
		Help:      "Time spent matching and scoring one submission",
		Buckets:   msBuckets,
	})

	m.binarizations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "binarizations_total",
		Help:      "Prediction vectors by binarization path (none, threshold, minmax)",
	}, []string{"mode"})

	m.evaluationErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "evaluation_errors_total",
		Help:      "Rejected submissions by error kind",
	}, []string{"kind"})

	m.submissionScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "submission_score_percent",
		Help:      "Distribution of computed scores in percent",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	m.matchedRows = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "matched_rows",
		Help:      "Number of ids matched between ground truth and submission",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	m.groundTruthLoads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ground_truth_loads_total",
		Help:      "Ground truth fetches from the blob store, by outcome",
	}, []string{"outcome"})

	m.groundTruthRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "ground_truth_rows",
		Help:      "Rows in the most recently loaded ground truth table",
	})

	m.duplicatesDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "duplicate_ids_dropped_total",
		Help:      "Rows dropped because of duplicate ids, by table (labels, predictions)",
	}, []string{"table"})

	m.appendOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "append_outcomes_total",
		Help:      "History log appends by outcome (committed, duplicate, failed)",
	}, []string{"outcome"})

	m.appendAttempts = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "append_attempts",
		Help:      "Compare-and-swap attempts needed per append",
		Buckets:   []float64{1, 2, 3, 4, 5, 8},
	})

	m.appendConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "append_version_conflicts_total",
		Help:      "Version conflicts observed while committing history appends",
	})

	m.appendLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "append_latency_milliseconds",
		Help:      "End-to-end latency of a history append including retries",
		Buckets:   msBuckets,
	})

	m.dedupeSkips = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "append_dedupe_skips_total",
		Help:      "Appends skipped because the session already logged the same result",
	})

	m.historyRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "history_records",
		Help:      "Records in the most recently read history log",
	})

	m.blobRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "blobstore_requests_total",
		Help:      "Blob store calls by backend, operation and outcome",
	}, []string{"backend", "op", "outcome"})

	m.blobRequestLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "blobstore_request_latency_milliseconds",
		Help:      "Blob store call latency by backend and operation",
		Buckets:   msBuckets,
	}, []string{"backend", "op"})

	m.cacheHits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "cache_hits_total",
		Help:      "Read-through cache hits by cache name",
	}, []string{"cache"})

	m.cacheMisses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "cache_misses_total",
		Help:      "Read-through cache misses by cache name",
	}, []string{"cache"})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "active_sessions",
		Help:      "Sessions holding dedup state",
	})

	m.leaderboardSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "leaderboard_size",
		Help:      "Distinct users in the last projected leaderboard",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "errors_by_component_total",
		Help:      "Errors by component and error type",
	}, []string{"component", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "errors_by_type_total",
		Help:      "Errors by type and severity",
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "errors_by_endpoint_total",
		Help:      "Errors by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "error_latency_milliseconds",
		Help:      "Latency of operations that ended in an error",
		Buckets:   msBuckets,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Evaluation Metrics Functions.

// RecordSubmission counts a submission by result ("scored" or "rejected").
func RecordSubmission(result string) {
	globalManager.submissions.WithLabelValues(result).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordBinarization counts which binarization path a prediction vector took.
func RecordBinarization(mode string) {
	globalManager.binarizations.WithLabelValues(mode).Inc()
}

// RecordEvaluationError counts a rejected submission by error kind.
func RecordEvaluationError(kind string) {
	globalManager.evaluationErrors.WithLabelValues(kind).Inc()
}

// RecordSubmissionScore observes a computed score in percent.
func RecordSubmissionScore(scorePercent float64) {
	globalManager.submissionScore.Observe(scorePercent)
}

// RecordMatchedRows observes the size of a matched set.
func RecordMatchedRows(n int) {
	globalManager.matchedRows.Observe(float64(n))
}

// RecordGroundTruthLoad counts a ground truth fetch ("ok" or "error").
func RecordGroundTruthLoad(outcome string) {
	globalManager.groundTruthLoads.WithLabelValues(outcome).Inc()
}

// UpdateGroundTruthRows sets the loaded ground truth size.
func UpdateGroundTruthRows(n int) {
	globalManager.groundTruthRows.Set(float64(n))
}

// RecordDuplicatesDropped adds n dropped duplicate rows for table.
func RecordDuplicatesDropped(table string, n int) {
	if n <= 0 {
		return
	}
	globalManager.duplicatesDropped.WithLabelValues(table).Add(float64(n))
}

// Append-log Metrics Functions.

// RecordAppendOutcome counts an append by outcome.
func RecordAppendOutcome(outcome string) {
	globalManager.appendOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAppendAttempts observes how many CAS attempts an append took.
func RecordAppendAttempts(attempts int) {
	globalManager.appendAttempts.Observe(float64(attempts))
}

// RecordAppendConflict increments the version conflict counter.
func RecordAppendConflict() {
	globalManager.appendConflicts.Inc()
}

// RecordAppendLatency records the end-to-end append latency.
func RecordAppendLatency(latencyMs float64) {
	globalManager.appendLatency.Observe(latencyMs)
}

// RecordDedupeSkip increments the session dedupe skip counter.
func RecordDedupeSkip() {
	globalManager.dedupeSkips.Inc()
}

// UpdateHistoryRecords sets the number of records in the history log.
func UpdateHistoryRecords(n int) {
	globalManager.historyRecords.Set(float64(n))
}

// Blob store Metrics Functions.

// RecordBlobRequest counts a blob store call.
func RecordBlobRequest(backend, op, outcome string) {
	globalManager.blobRequests.WithLabelValues(backend, op, outcome).Inc()
}

// RecordBlobRequestLatency records a blob store call latency.
func RecordBlobRequestLatency(backend, op string, latencyMs float64) {
	globalManager.blobRequestLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// Cache Metrics Functions.

// RecordCacheHit counts a cache hit.
func RecordCacheHit(cache string) {
	globalManager.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a cache miss.
func RecordCacheMiss(cache string) {
	globalManager.cacheMisses.WithLabelValues(cache).Inc()
}

// UpdateActiveSessions sets the number of sessions with dedup state.
func UpdateActiveSessions(n int) {
	globalManager.activeSessions.Set(float64(n))
}

// UpdateLeaderboardSize sets the number of ranked users.
func UpdateLeaderboardSize(n int) {
	globalManager.leaderboardSize.Set(float64(n))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
