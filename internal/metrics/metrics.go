package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Render job metrics
	RendersStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_renders_started_total",
			Help: "Total number of render sessions started",
		},
		[]string{"format"},
	)

	RendersFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_renders_finished_total",
			Help: "Total number of render sessions that reached a terminal state",
		},
		[]string{"format", "status"},
	)

	RendersInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vedit_renders_in_progress",
			Help: "Number of render sessions currently running",
		},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_render_duration_seconds",
			Help:    "Wall-clock time from session start to terminal state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"format"},
	)

	RenderOutputSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vedit_render_output_seconds_total",
			Help: "Total duration of rendered output in seconds",
		},
	)

	// Encoder metrics
	FramesEncodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_frames_encoded_total",
			Help: "Frames handed to the encoder, split by how they were produced",
		},
		[]string{"kind"},
	)

	EncodedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_encoded_bytes_total",
			Help: "Total bytes of finished render artifacts",
		},
		[]string{"format"},
	)

	// Render diagnostics
	OverlayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_overlay_errors_total",
			Help: "Overlay load or draw failures reported during rendering",
		},
		[]string{"kind"},
	)

	TrackErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vedit_track_errors_total",
			Help: "Audio tracks that failed to decode and were left out of the mix",
		},
	)

	JobsQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vedit_jobs_queue_depth",
			Help: "Number of render jobs waiting in queue",
		},
	)

	JobQueueTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vedit_job_queue_time_seconds",
			Help:    "Time render jobs spend waiting in queue",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Webhook Metrics
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_webhook_deliveries_total",
			Help: "Webhook delivery attempts by event and outcome",
		},
		[]string{"event", "status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_errors_total",
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

// RecordRenderStarted records a session entering the running pipeline
func RecordRenderStarted(format string) {
	RendersStartedTotal.WithLabelValues(format).Inc()
	RendersInProgress.Inc()
}

// RecordRenderFinished records a session reaching completed, failed or cancelled
func RecordRenderFinished(format, status string, duration float64) {
	RendersFinishedTotal.WithLabelValues(format, status).Inc()
	RenderDuration.WithLabelValues(format).Observe(duration)
	RendersInProgress.Dec()
}

// RecordRenderOutput records what the encoder produced for a finished render
func RecordRenderOutput(format string, outputSeconds float64, frames, duplicated, dropped int, bytes int64) {
	RenderOutputSeconds.Add(outputSeconds)
	FramesEncodedTotal.WithLabelValues("drawn").Add(float64(frames - duplicated))
	FramesEncodedTotal.WithLabelValues("duplicated").Add(float64(duplicated))
	FramesEncodedTotal.WithLabelValues("dropped").Add(float64(dropped))
	EncodedBytesTotal.WithLabelValues(format).Add(float64(bytes))
}

// RecordOverlayError records an overlay failure by overlay kind
func RecordOverlayError(kind string) {
	OverlayErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordTrackError records an audio track left out of the mix
func RecordTrackError() {
	TrackErrorsTotal.Inc()
}

// RecordQueueTime records how long a job waited before a worker picked it up
func RecordQueueTime(seconds float64) {
	JobQueueTime.Observe(seconds)
}

// UpdateQueueDepth updates the number of waiting render jobs
func UpdateQueueDepth(depth int) {
	JobsQueueDepth.Set(float64(depth))
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordWebhookDelivery records one webhook delivery attempt
func RecordWebhookDelivery(event string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
