// Package telemetry exposes Prometheus metrics for run and chunk
// processing. Telemetry is observational only: nothing in the
// pipeline reads these values back to make a decision.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters and histograms the dispatcher and pipeline
// report to.
type Metrics struct {
	RunsStarted        prometheus.Counter
	RunsCompleted      prometheus.Counter
	RunsFailed         prometheus.Counter
	ChunkDuration      prometheus.Histogram
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	BackpressurePauses prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics bundle on reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_runs_started_total",
			Help: "Number of transcription runs started.",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_runs_completed_total",
			Help: "Number of transcription runs completed successfully.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_runs_failed_total",
			Help: "Number of transcription runs that ended in failure.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamscribe_chunk_processing_seconds",
			Help:    "Wall-clock time to execute one chunk.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_cache_hits_total",
			Help: "Chunk cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_cache_misses_total",
			Help: "Chunk cache misses.",
		}),
		BackpressurePauses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_backpressure_pauses_total",
			Help: "Number of times the backpressure gate paused a run.",
		}),
	}

	reg.MustRegister(
		m.RunsStarted, m.RunsCompleted, m.RunsFailed,
		m.ChunkDuration, m.CacheHits, m.CacheMisses, m.BackpressurePauses,
	)
	return m
}
