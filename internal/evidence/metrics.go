package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors extraction/storage.go's StorageMetrics shape, retargeted
// from per-campaign keyword counters to per-run evidence-directory counters.
type Metrics struct {
	rowsWritten     prometheus.Counter
	writeFailures   prometheus.Counter
	writeDuration   prometheus.Histogram
	prunedDirs      prometheus.Counter
	compressedDirs  prometheus.Counter
	reclaimedBytes  prometheus.Counter
}

// NewMetrics registers the evidence collector's Prometheus instruments
// against a dedicated registry, so that constructing more than one Collector
// in the same process (as the test suite does) never collides with the
// global default registerer. That registry is private to the returned
// Metrics; nothing registers it with a process-wide registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		rowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "rowvalidator_evidence_rows_written_total",
			Help: "Total number of rows whose evidence was written to disk.",
		}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rowvalidator_evidence_write_failures_total",
			Help: "Total number of evidence write failures.",
		}),
		writeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rowvalidator_evidence_write_duration_seconds",
			Help:    "Time spent writing one row's evidence directory.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		prunedDirs: factory.NewCounter(prometheus.CounterOpts{
			Name: "rowvalidator_evidence_pruned_dirs_total",
			Help: "Total number of evidence directories removed by retention sweeps.",
		}),
		compressedDirs: factory.NewCounter(prometheus.CounterOpts{
			Name: "rowvalidator_evidence_compressed_dirs_total",
			Help: "Total number of evidence directories compressed.",
		}),
		reclaimedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rowvalidator_evidence_reclaimed_bytes_total",
			Help: "Total bytes reclaimed by retention/compression sweeps.",
		}),
	}
}
