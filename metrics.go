package gdfparquet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gdfparquet"

// Metrics holds the metrics tracked by the reader. A nil *Metrics records nothing.
type Metrics struct {
	FilesRead         prometheus.Counter
	ReadFailures      *prometheus.CounterVec
	PagesDecoded      prometheus.Counter
	DecompressedBytes *prometheus.CounterVec
	SkippedChunks     prometheus.Counter
	ReadDuration      prometheus.Histogram
}

// NewMetrics registers the reader metrics with reg. A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var m Metrics
	m.FilesRead = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "files_read_total",
		Help:      "Total number of files decoded successfully.",
	})
	m.ReadFailures = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "read_failures_total",
		Help:      "Total number of failed reads by error kind.",
	}, []string{"kind"})
	m.PagesDecoded = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "pages_decoded_total",
		Help:      "Total number of data pages decoded.",
	})
	m.DecompressedBytes = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "decompressed_bytes_total",
		Help:      "Total number of bytes produced by the decompression backend.",
	}, []string{"codec"})
	m.SkippedChunks = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "skipped_chunks_total",
		Help:      "Total number of column chunks skipped because the chunk table was full.",
	})
	m.ReadDuration = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "read_duration_seconds",
		Help:      "Duration of file reads in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	return &m
}

func (m *Metrics) readSucceeded(seconds float64) {
	if m == nil {
		return
	}
	m.FilesRead.Inc()
	m.ReadDuration.Observe(seconds)
}

func (m *Metrics) readFailed(err error) {
	if m == nil {
		return
	}
	m.ReadFailures.WithLabelValues(KindOf(err).label()).Inc()
}

func (m *Metrics) pagesDecoded(n int) {
	if m == nil {
		return
	}
	m.PagesDecoded.Add(float64(n))
}

func (m *Metrics) decompressed(codecName string, n int) {
	if m == nil {
		return
	}
	m.DecompressedBytes.WithLabelValues(codecName).Add(float64(n))
}

func (m *Metrics) chunkSkipped() {
	if m == nil {
		return
	}
	m.SkippedChunks.Inc()
}
