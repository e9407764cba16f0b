// Package rvpfmetrics registers the process's prometheus counters,
// gauges and histograms, one set per subsystem, through an explicit
// prometheus.Registry rather than package-level globals, since each
// service runs as its own process.
package rvpfmetrics

import "github.com/prometheus/client_golang/prometheus"

// Store holds the point-value store's metrics.
type Store struct {
	UpdatesTotal    prometheus.Counter
	UpdateLatency   prometheus.Histogram
	ArchiverRetired prometheus.Counter
	NotifierDepth   prometheus.Gauge
}

// NewStore registers and returns the store metric set on reg.
func NewStore(reg *prometheus.Registry) *Store {
	s := &Store{
		UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_store_updates_total",
			Help: "Point values committed via Store.Update.",
		}),
		UpdateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rvpf_store_update_seconds",
			Help:    "Store.Update transaction latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ArchiverRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_store_archiver_retired_total",
			Help: "Archive rows retired by either Archiver strategy.",
		}),
		NotifierDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rvpf_store_notifier_depth",
			Help: "Pending notices in the notifier queue.",
		}),
	}
	reg.MustRegister(s.UpdatesTotal, s.UpdateLatency, s.ArchiverRetired, s.NotifierDepth)
	return s
}

// Processor holds the batch engine's metrics.
type Processor struct {
	BatchesTotal    prometheus.Counter
	BatchLatency    prometheus.Histogram
	ResultsEmitted  prometheus.Counter
	ResultsSuppress prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// NewProcessor registers and returns the processor metric set on reg.
func NewProcessor(reg *prometheus.Registry) *Processor {
	p := &Processor{
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_processor_batches_total",
			Help: "Batches committed.",
		}),
		BatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rvpf_processor_batch_seconds",
			Help:    "Wall time from first trigger to commit, per batch.",
			Buckets: prometheus.DefBuckets,
		}),
		ResultsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_processor_results_emitted_total",
			Help: "PointValues emitted by the transform pass.",
		}),
		ResultsSuppress: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_processor_results_suppressed_total",
			Help: "Results suppressed by a deterministic transform error.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_processor_cache_hits_total",
			Help: "CacheManager lookups satisfied without a store query.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rvpf_processor_cache_misses_total",
			Help: "CacheManager lookups that required a store query.",
		}),
	}
	reg.MustRegister(p.BatchesTotal, p.BatchLatency, p.ResultsEmitted, p.ResultsSuppress, p.CacheHits, p.CacheMisses)
	return p
}
