package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_monitor_files_processed_total",
			Help: "The total number of transaction files processed",
		},
		[]string{"source", "status"},
	)

	TransactionsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_transactions_persisted_total",
			Help: "The total number of transactions stored in the database",
		},
	)

	TransactionsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_transactions_skipped_total",
			Help: "The total number of duplicate transactions skipped",
		},
	)

	TransactionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_transactions_rejected_total",
			Help: "The total number of transactions rejected by validation",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vote_monitor_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	RegistryRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vote_monitor_registry_request_duration_seconds",
			Help:    "Duration of registry API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RegistryRequestErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_registry_request_errors_total",
			Help: "The total number of registry API request errors",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vote_monitor_update_queue_depth",
			Help: "Number of update tasks waiting in the queue",
		},
	)

	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_monitor_update_tasks_total",
			Help: "The total number of update tasks processed",
		},
		[]string{"trigger", "status"},
	)

	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_update_task_retries_total",
			Help: "The total number of update task retry attempts",
		},
	)

	DeadTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vote_monitor_dead_tasks",
			Help: "Number of update tasks that exhausted their retries",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_cache_hits_total",
			Help: "The total number of metrics cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_monitor_cache_misses_total",
			Help: "The total number of metrics cache misses",
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_monitor_anomalies_detected_total",
			Help: "The total number of anomaly rule violations detected",
		},
		[]string{"rule"},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vote_monitor_watched_directories",
			Help: "Number of directories currently under watch",
		},
	)
)

func RecordFileProcessed(source, status string) {
	FilesProcessed.WithLabelValues(source, status).Inc()
}

func RecordBatch(persisted, skipped, rejected int) {
	TransactionsPersisted.Add(float64(persisted))
	TransactionsSkipped.Add(float64(skipped))
	TransactionsRejected.Add(float64(rejected))
}

func RecordTask(trigger, status string) {
	TasksProcessed.WithLabelValues(trigger, status).Inc()
}

func RecordRegistryRequest(duration float64, success bool) {
	RegistryRequestDuration.Observe(duration)
	if !success {
		RegistryRequestErrors.Inc()
	}
}

func RecordAnomaly(rule string) {
	AnomaliesDetected.WithLabelValues(rule).Inc()
}
