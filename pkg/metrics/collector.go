package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the prometheus collectors for node execution and the
// bounding box watcher.
type PipelineMetrics struct {
	chunksTotal   *prometheus.CounterVec
	chunkDuration *prometheus.HistogramVec
	watcher       *WatcherMetrics
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		chunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshpipe_chunks_total",
				Help: "Total chunk executions by node type and final status",
			},
			[]string{"node", "status"},
		),
		chunkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meshpipe_chunk_duration_seconds",
				Help:    "Wall time of chunk executions by node type",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"node"},
		),
		watcher: &WatcherMetrics{
			polls: factory.NewCounter(prometheus.CounterOpts{
				Name: "meshpipe_bbox_polls_total",
				Help: "Total bounding box artifact checks",
			}),
			applied: factory.NewCounter(prometheus.CounterOpts{
				Name: "meshpipe_bbox_applied_total",
				Help: "Total bounding box results applied to parameter trees",
			}),
			parseErrors: factory.NewCounter(prometheus.CounterOpts{
				Name: "meshpipe_bbox_parse_errors_total",
				Help: "Total malformed bounding box artifacts",
			}),
		},
	}
}

// ChunkFinished records one finished chunk execution.
func (m *PipelineMetrics) ChunkFinished(node, status string, seconds float64) {
	m.chunksTotal.WithLabelValues(node, status).Inc()
	m.chunkDuration.WithLabelValues(node).Observe(seconds)
}

// Watcher returns the bounding box watcher collectors. Satisfies
// boundingbox.Observer.
func (m *PipelineMetrics) Watcher() *WatcherMetrics {
	return m.watcher
}

// WatcherMetrics counts bounding box watcher events.
type WatcherMetrics struct {
	polls       prometheus.Counter
	applied     prometheus.Counter
	parseErrors prometheus.Counter
}

// Poll counts one artifact check.
func (w *WatcherMetrics) Poll() { w.polls.Inc() }

// Applied counts one successful result application.
func (w *WatcherMetrics) Applied() { w.applied.Inc() }

// ParseFailure counts one malformed artifact.
func (w *WatcherMetrics) ParseFailure() { w.parseErrors.Inc() }
