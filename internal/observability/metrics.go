package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchtower",
		Name:      "detections_ingested_total",
		Help:      "Total number of detection submissions accepted for processing",
	}, []string{"kind"})

	DetectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchtower",
		Name:      "detections_rejected_total",
		Help:      "Total number of detection submissions rejected at validation",
	})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchtower",
		Name:      "tasks_processed_total",
		Help:      "Total number of queued tasks processed by outcome",
	}, []string{"kind", "outcome"})

	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "watchtower",
		Name:      "task_duration_seconds",
		Help:      "Duration of one task's database transaction",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	ImageStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchtower",
		Name:      "image_store_failures_total",
		Help:      "Image uploads that were dropped after a storage error",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchtower",
		Name:      "queue_depth",
		Help:      "Number of pending detection tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watchtower",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchtower",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
