// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SajanLamichhane/chunkflow/pkg/metrics"
)

// uploadMetrics is the Prometheus implementation of
// metrics.UploadMetrics.
type uploadMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec

	chunksReceivedTotal prometheus.Counter
	chunkBytesTotal     prometheus.Counter
	chunksRejectedTotal prometheus.Counter

	instantUploadsTotal prometheus.Counter
	filesMergedTotal    prometheus.Counter
	mergedChunksTotal   prometheus.Counter
	mergedBytesTotal    prometheus.Counter

	streamedBytesTotal prometheus.Counter
}

var _ metrics.UploadMetrics = (*uploadMetrics)(nil)

// NewUploadMetrics creates a new Prometheus-backed upload metrics
// instance registered against reg.
func NewUploadMetrics(reg prometheus.Registerer) metrics.UploadMetrics {
	return &uploadMetrics{
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunkflow_request_duration_seconds",
				Help:    "Upload API request duration by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkflow_requests_total",
				Help: "Total upload API requests by operation and status code",
			},
			[]string{"operation", "status"},
		),
		chunksReceivedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_chunks_received_total",
				Help: "Total chunks accepted into the blob store",
			},
		),
		chunkBytesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_chunk_bytes_total",
				Help: "Total chunk payload bytes accepted",
			},
		),
		chunksRejectedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_chunks_rejected_total",
				Help: "Total chunks rejected for digest integrity mismatch",
			},
		),
		instantUploadsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_instant_uploads_total",
				Help: "Total uploads completed by file-hash dedup without transfer",
			},
		),
		filesMergedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_files_merged_total",
				Help: "Total logical file merges completed",
			},
		),
		mergedChunksTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_merged_chunks_total",
				Help: "Total chunks referenced by completed merges",
			},
		),
		mergedBytesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_merged_bytes_total",
				Help: "Total logical bytes across completed merges",
			},
		),
		streamedBytesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "chunkflow_streamed_bytes_total",
				Help: "Total bytes served from file reads",
			},
		),
	}
}

func (m *uploadMetrics) RecordRequest(operation string, duration time.Duration, status int) {
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(operation, statusLabel(status)).Inc()
}

func (m *uploadMetrics) RecordChunkReceived(bytes int64) {
	m.chunksReceivedTotal.Inc()
	m.chunkBytesTotal.Add(float64(bytes))
}

func (m *uploadMetrics) RecordChunkRejected() {
	m.chunksRejectedTotal.Inc()
}

func (m *uploadMetrics) RecordInstantUpload() {
	m.instantUploadsTotal.Inc()
}

func (m *uploadMetrics) RecordFileMerged(chunks int, bytes int64) {
	m.filesMergedTotal.Inc()
	m.mergedChunksTotal.Add(float64(chunks))
	m.mergedBytesTotal.Add(float64(bytes))
}

func (m *uploadMetrics) RecordBytesStreamed(bytes int64) {
	m.streamedBytesTotal.Add(float64(bytes))
}

// statusLabel buckets status codes into their class ("2xx", "4xx", ...)
// to keep cardinality bounded.
func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
