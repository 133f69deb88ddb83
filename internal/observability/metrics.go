package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "uploads_handled_total",
		Help:      "Upload events processed by the detector, by outcome",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "faces_detected_total",
		Help:      "Total number of faces returned by the vision service",
	})

	TasksPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "tasks_published_total",
		Help:      "Detection tasks published to the work queue",
	})

	TasksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "tasks_processed_total",
		Help:      "Detection tasks cropped and persisted",
	})

	TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "tasks_rejected_total",
		Help:      "Queue messages terminated without redelivery",
	}, []string{"stream"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facebot",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	BotCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "bot_commands_total",
		Help:      "Inbound chat messages by recognised command and result",
	}, []string{"command", "result"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "facebot",
		Name:      "queue_depth",
		Help:      "Number of pending messages per stream",
	}, []string{"stream"})

	OrphanBlobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facebot",
		Name:      "orphan_blobs",
		Help:      "Face crops in the target bucket without a face record, as of the last sweep",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facebot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
