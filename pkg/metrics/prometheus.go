package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the calboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Calendar engine
	gridBuilds         *prometheus.CounterVec
	viewLatency        *prometheus.HistogramVec
	eventsProjected    prometheus.Counter
	layoutClipped      prometheus.Counter
	layoutRejected     prometheus.Counter
	validationFailures *prometheus.CounterVec

	// Store
	eventsStored  prometheus.Gauge
	ownersTracked prometheus.Gauge
	storeLatency  *prometheus.HistogramVec

	// Import queue and workers
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueRejected   prometheus.Counter
	queueWait       prometheus.Histogram
	workersActive   prometheus.Gauge
	importJobs      *prometheus.CounterVec
	importedEvents  prometheus.Counter
	importLatency   prometheus.Histogram
	duplicatesTotal *prometheus.CounterVec

	// Reminders
	reminderRuns  prometheus.Counter
	remindersSent prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var (
	mu             sync.RWMutex
	globalManager  *Manager
	customRegistry = prometheus.NewRegistry()
)

func init() {
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "calboard",
		subsystem:        "",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		enabled:          true,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// SetGlobal replaces the manager used by the package-level recorders.
func SetGlobal(m *Manager) {
	if m == nil {
		return
	}
	mu.Lock()
	globalManager = m
	mu.Unlock()
}

func current() *Manager {
	mu.RLock()
	defer mu.RUnlock()
	return globalManager
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.gridBuilds = auto.NewCounterVec(
		m.counterOpts("grid_builds_total", "Calendar grids built, by view mode"),
		[]string{"mode"},
	)
	m.viewLatency = auto.NewHistogramVec(
		m.histogramOpts("view_build_latency_milliseconds", "Time to build a calendar view, by view mode"),
		[]string{"mode"},
	)
	m.eventsProjected = auto.NewCounter(m.counterOpts("events_projected_total", "Events placed into grid cells"))
	m.layoutClipped = auto.NewCounter(m.counterOpts("layout_clipped_total", "Layout rectangles clipped at a column boundary"))
	m.layoutRejected = auto.NewCounter(m.counterOpts("layout_rejected_total", "Events refused by the layout engine for crossing midnight"))
	m.validationFailures = auto.NewCounterVec(
		m.counterOpts("validation_failures_total", "Event records rejected at ingestion, by field"),
		[]string{"field"},
	)

	m.eventsStored = auto.NewGauge(m.gaugeOpts("events_stored", "Events currently held by the store"))
	m.ownersTracked = auto.NewGauge(m.gaugeOpts("owners_tracked", "Distinct owners with at least one event"))
	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_operation_latency_milliseconds", "Store operation latency, by operation"),
		[]string{"operation"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("import_queue_size", "Import jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("import_queue_capacity", "Maximum number of queued import jobs"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("import_queue_enqueued_total", "Import jobs accepted into the queue"))
	m.queueRejected = auto.NewCounter(m.counterOpts("import_queue_rejected_total", "Import jobs refused because the queue was full"))
	m.queueWait = auto.NewHistogram(m.histogramOpts("import_queue_wait_milliseconds", "Time a job waited before a worker picked it up"))
	m.workersActive = auto.NewGauge(m.gaugeOpts("import_workers_active", "Import workers currently processing a job"))
	m.importJobs = auto.NewCounterVec(
		m.counterOpts("import_jobs_total", "Finished import jobs, by outcome"),
		[]string{"status"},
	)
	m.importedEvents = auto.NewCounter(m.counterOpts("imported_events_total", "Events stored by import jobs"))
	m.importLatency = auto.NewHistogram(m.histogramOpts("import_latency_milliseconds", "Time to parse and store one import job"))
	m.duplicatesTotal = auto.NewCounterVec(
		m.counterOpts("duplicates_total", "Duplicate submissions suppressed, by component"),
		[]string{"component"},
	)

	m.reminderRuns = auto.NewCounter(m.counterOpts("reminder_runs_total", "Reminder scans executed"))
	m.remindersSent = auto.NewCounter(m.counterOpts("reminders_sent_total", "Reminders delivered for upcoming events"))

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "type"},
	)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := current(); m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if m := current(); m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordGridBuild counts a grid built for mode.
func RecordGridBuild(mode string) {
	if m := current(); m.enabled {
		m.gridBuilds.WithLabelValues(mode).Inc()
	}
}

// RecordViewLatency records the time spent building a view.
func RecordViewLatency(mode string, latencyMs float64) {
	if m := current(); m.enabled {
		m.viewLatency.WithLabelValues(mode).Observe(latencyMs)
	}
}

// RecordEventsProjected adds n to the projected events counter.
func RecordEventsProjected(n int) {
	if m := current(); m.enabled && n > 0 {
		m.eventsProjected.Add(float64(n))
	}
}

// RecordLayoutClipped adds n to the clipped rectangles counter.
func RecordLayoutClipped(n int) {
	if m := current(); m.enabled && n > 0 {
		m.layoutClipped.Add(float64(n))
	}
}

// RecordLayoutRejected counts an event refused by the reject span policy.
func RecordLayoutRejected() {
	if m := current(); m.enabled {
		m.layoutRejected.Inc()
	}
}

// RecordValidationFailure counts a rejected record for field.
func RecordValidationFailure(field string) {
	if m := current(); m.enabled {
		m.validationFailures.WithLabelValues(field).Inc()
	}
}

// UpdateStoreSize sets the stored event and owner gauges.
func UpdateStoreSize(events, owners int) {
	if m := current(); m.enabled {
		m.eventsStored.Set(float64(events))
		m.ownersTracked.Set(float64(owners))
	}
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(operation string, latencyMs float64) {
	if m := current(); m.enabled {
		m.storeLatency.WithLabelValues(operation).Observe(latencyMs)
	}
}

// UpdateQueueSize sets the current import queue length.
func UpdateQueueSize(size int) {
	if m := current(); m.enabled {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the import queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := current(); m.enabled {
		m.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted import job.
func RecordQueueEnqueue() {
	if m := current(); m.enabled {
		m.queueEnqueued.Inc()
	}
}

// RecordQueueRejected counts an import job refused for backpressure.
func RecordQueueRejected() {
	if m := current(); m.enabled {
		m.queueRejected.Inc()
	}
}

// RecordQueueWait records how long a job sat in the queue.
func RecordQueueWait(latencyMs float64) {
	if m := current(); m.enabled {
		m.queueWait.Observe(latencyMs)
	}
}

// UpdateWorkersActive sets the number of busy import workers.
func UpdateWorkersActive(n int) {
	if m := current(); m.enabled {
		m.workersActive.Set(float64(n))
	}
}

// RecordImportJob counts a finished import job with its final status.
func RecordImportJob(status string, events int, latencyMs float64) {
	if m := current(); m.enabled {
		m.importJobs.WithLabelValues(status).Inc()
		if events > 0 {
			m.importedEvents.Add(float64(events))
		}
		m.importLatency.Observe(latencyMs)
	}
}

// RecordDuplicate counts a suppressed duplicate in component.
func RecordDuplicate(component string) {
	if m := current(); m.enabled {
		m.duplicatesTotal.WithLabelValues(component).Inc()
	}
}

// RecordReminderRun counts a reminder scan and the reminders it sent.
func RecordReminderRun(sent int) {
	if m := current(); m.enabled {
		m.reminderRuns.Inc()
		if sent > 0 {
			m.remindersSent.Add(float64(sent))
		}
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := current(); m.enabled {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
