package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursedub_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Dubbing Metrics
	DubSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_dub_submissions_total",
			Help: "Per-language dubbing submission outcomes",
		},
		[]string{"outcome"},
	)

	DubJobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_dub_job_transitions_total",
			Help: "Dub job state transitions",
		},
		[]string{"from", "to", "source"},
	)

	DubJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursedub_dub_jobs_active",
			Help: "Number of non-terminal dub jobs seen by this process",
		},
	)

	DubJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursedub_dub_job_duration_seconds",
			Help:    "Time from remote submission to terminal state",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10s to ~11 hours
		},
		[]string{"state"},
	)

	DubPollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_dub_poll_errors_total",
			Help: "Failed remote status polls",
		},
		[]string{"reason"},
	)

	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_remote_requests_total",
			Help: "Requests to the remote dubbing service",
		},
		[]string{"operation", "status"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursedub_remote_request_duration_seconds",
			Help:    "Remote dubbing service request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Playback Metrics
	PlaybackSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_playback_sessions_total",
			Help: "Playback sessions opened by initial engine",
		},
		[]string{"engine"},
	)

	PlaybackSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursedub_playback_sessions_active",
			Help: "Number of open playback sessions",
		},
	)

	ManifestLoadFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_manifest_load_failures_total",
			Help: "Manifest load failures by engine",
		},
		[]string{"engine"},
	)

	ManifestLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursedub_manifest_load_duration_seconds",
			Help:    "Manifest load latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"engine"},
	)

	PlaybackSessionErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursedub_playback_session_errors_total",
			Help: "Sessions that reached the terminal error state",
		},
	)

	TrackSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_track_switches_total",
			Help: "Language switch requests by result",
		},
		[]string{"result"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	DubJobsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coursedub_dub_jobs",
			Help: "Dub jobs in the database by state",
		},
		[]string{"state"},
	)

	// Queue Metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coursedub_queue_depth",
			Help: "Messages waiting in the event queues",
		},
		[]string{"queue"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursedub_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordDubSubmission records the outcome of one requested language
func RecordDubSubmission(outcome string) {
	DubSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordDubJobCreated records a new active dub job
func RecordDubJobCreated() {
	DubJobsActive.Inc()
}

// RecordDubJobTransition records a state transition. Entering a terminal
// state releases the job from the active gauge.
func RecordDubJobTransition(from, to, source string, terminal bool) {
	DubJobTransitionsTotal.WithLabelValues(from, to, source).Inc()
	if terminal {
		DubJobsActive.Dec()
	}
}

// RecordDubJobCompleted records the time a job spent at the remote service
func RecordDubJobCompleted(state string, duration float64) {
	DubJobDuration.WithLabelValues(state).Observe(duration)
}

// RecordPollError records a failed status poll
func RecordPollError(reason string) {
	DubPollErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordRemoteRequest records a remote dubbing service call
func RecordRemoteRequest(operation, status string, duration float64) {
	RemoteRequestsTotal.WithLabelValues(operation, status).Inc()
	RemoteRequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordSessionOpened records a new playback session
func RecordSessionOpened(engine string) {
	PlaybackSessionsTotal.WithLabelValues(engine).Inc()
	PlaybackSessionsActive.Inc()
}

// RecordSessionClosed records a closed playback session
func RecordSessionClosed() {
	PlaybackSessionsActive.Dec()
}

// RecordManifestLoad records one manifest load attempt
func RecordManifestLoad(engine string, duration float64, err error) {
	ManifestLoadDuration.WithLabelValues(engine).Observe(duration)
	if err != nil {
		ManifestLoadFailuresTotal.WithLabelValues(engine).Inc()
	}
}

// RecordSessionError records a session entering the error state
func RecordSessionError() {
	PlaybackSessionErrorsTotal.Inc()
}

// RecordTrackSwitch records a language switch result
func RecordTrackSwitch(result string) {
	TrackSwitchesTotal.WithLabelValues(result).Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// SetQueueDepth records the event and dead letter queue depths
func SetQueueDepth(events, deadLetter int) {
	QueueDepth.WithLabelValues("events").Set(float64(events))
	QueueDepth.WithLabelValues("dead_letter").Set(float64(deadLetter))
}

// SetDubJobCounts records the database-wide job count per state
func SetDubJobCounts(counts map[string]int) {
	for state, n := range counts {
		DubJobsByState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
