package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stages of a scoring request timed by RecordStageLatency.
const (
	StageResolving  = "resolving"
	StageParsing    = "parsing"
	StageEvaluating = "evaluating"
)

var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Manager manages all Prometheus metrics for the scoring service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Scoring
	scoringRequests *prometheus.CounterVec
	scoringLatency  *prometheus.HistogramVec
	stageLatency    *prometheus.HistogramVec
	scoringErrors   *prometheus.CounterVec
	inFlight        prometheus.Gauge
	fetchedBytes    *prometheus.CounterVec
	partialJoins    prometheus.Counter

	// Jobs
	jobs               *prometheus.CounterVec
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerActiveCount  prometheus.Gauge
	workerErrors       prometheus.Counter

	// Persistence
	submissionsRecorded prometheus.Counter
	recordErrors        prometheus.Counter
	totalSubmissions    prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scorer",
		subsystem:        "engine",
		histogramBuckets: latencyBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.scoringRequests = auto.NewCounterVec(
		m.counterOpts("scoring_requests_total", "Scoring requests by metric and final status"),
		[]string{"metric", "status"},
	)
	m.scoringLatency = auto.NewHistogramVec(
		m.histogramOpts("scoring_latency_milliseconds", "End-to-end scoring latency in milliseconds"),
		[]string{"metric"},
	)
	m.stageLatency = auto.NewHistogramVec(
		m.histogramOpts("stage_latency_milliseconds", "Latency of each scoring stage in milliseconds"),
		[]string{"stage"},
	)
	m.scoringErrors = auto.NewCounterVec(
		m.counterOpts("scoring_errors_total", "Failed scoring requests by error kind"),
		[]string{"kind"},
	)
	m.inFlight = auto.NewGauge(m.gaugeOpts("in_flight", "Scoring requests currently holding a slot"))
	m.fetchedBytes = auto.NewCounterVec(
		m.counterOpts("fetched_bytes_total", "Bytes read from file sources"),
		[]string{"source"},
	)
	m.partialJoins = auto.NewCounter(m.counterOpts("partial_joins_total", "Scored requests whose inputs only partially overlapped"))

	m.jobs = auto.NewCounterVec(
		m.counterOpts("jobs_total", "Asynchronous scoring jobs by admission result"),
		[]string{"result"},
	)
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued scoring jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum number of queued scoring jobs"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Jobs rejected by a full or closed queue"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured number of workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently scoring a job"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs whose outcome could not be recorded"))

	m.submissionsRecorded = auto.NewCounter(m.counterOpts("submissions_recorded_total", "Submission outcomes written to the recorder"))
	m.recordErrors = auto.NewCounter(m.counterOpts("record_errors_total", "Failed recorder writes"))
	m.totalSubmissions = auto.NewGauge(m.gaugeOpts("total_submissions", "Submissions held by the recorder"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpErrors = auto.NewCounterVec(
		m.counterOpts("http_errors_total", "HTTP error responses by endpoint and error type"),
		[]string{"endpoint", "type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// RecordScoring records one finished scoring request.
func RecordScoring(metric, status string, latencyMs float64) {
	globalManager.scoringRequests.WithLabelValues(metric, status).Inc()
	globalManager.scoringLatency.WithLabelValues(metric).Observe(latencyMs)
}

// RecordStageLatency records the time spent in one scoring stage.
func RecordStageLatency(stage string, latencyMs float64) error {
	switch stage {
	case StageResolving, StageParsing, StageEvaluating:
	default:
		return ErrUnknownStage
	}
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
	return nil
}

// RecordScoringError increments the error counter for kind.
func RecordScoringError(kind string) {
	globalManager.scoringErrors.WithLabelValues(kind).Inc()
}

// IncInFlight and DecInFlight track held concurrency slots.
func IncInFlight() { globalManager.inFlight.Inc() }

// DecInFlight releases a slot.
func DecInFlight() { globalManager.inFlight.Dec() }

// RecordFetchedBytes adds n bytes read from a local or remote source.
func RecordFetchedBytes(source string, n int) {
	globalManager.fetchedBytes.WithLabelValues(source).Add(float64(n))
}

// RecordPartialJoin counts a request scored on a partial key overlap.
func RecordPartialJoin() {
	globalManager.partialJoins.Inc()
}

// RecordJob counts an asynchronous job admission result
// (accepted, duplicate, rejected).
func RecordJob(result string) {
	globalManager.jobs.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordSubmissionRecorded increments the recorded submissions counter.
func RecordSubmissionRecorded() {
	globalManager.submissionsRecorded.Inc()
}

// RecordRecordError increments the recorder error counter.
func RecordRecordError() {
	globalManager.recordErrors.Inc()
}

// UpdateTotalSubmissions sets the number of stored submissions.
func UpdateTotalSubmissions(count int) {
	globalManager.totalSubmissions.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError records an error response classified by type.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
