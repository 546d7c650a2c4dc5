// Package metrics defines Prometheus metrics for mua.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mua_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mua_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mua_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	EmbedQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mua_embed_queue_depth",
			Help: "Current embedding queue depth",
		},
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mua_task_queue_depth",
			Help: "Current background task queue depth",
		},
	)

	BackgroundTaskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mua_background_task_failures_total",
			Help: "Background task failures by task name",
		},
		[]string{"task"},
	)

	RetrievalVectorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mua_retrieval_vector_failures_total",
			Help: "Retrieval requests whose vector pass failed and fell back to lexical",
		},
	)

	PipelineItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mua_pipeline_items_total",
			Help: "Enrichment items by outcome",
		},
		[]string{"outcome"},
	)

	IngestFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mua_ingest_files_total",
			Help: "Ingested files by outcome",
		},
		[]string{"outcome"},
	)

	NotifyReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mua_notify_reconnects_total",
			Help: "Change listener reconnect attempts",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mua_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		EmbedQueueDepth, TaskQueueDepth, BackgroundTaskFailures,
		RetrievalVectorFailures, PipelineItems, IngestFiles,
		NotifyReconnects, WSConnections,
	)
}
