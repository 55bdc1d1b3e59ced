package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photo_library"

// Engine groups the collectors updated by the stream loop and the cache
// coordinator.
type Engine struct {
	batches        prometheus.Counter
	committed      prometheus.Counter
	stale          *prometheus.CounterVec
	loads          *prometheus.CounterVec
	patchOps       *prometheus.CounterVec
	sequenceSize   prometheus.Gauge
	stashSize      prometheus.Gauge
	cacheEvictions *prometheus.CounterVec
	skipped        prometheus.Counter
	queueOverflow  prometheus.Counter
}

// New creates and registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Engine {
	f := promauto.With(reg)
	return &Engine{
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Number of batches delivered to the consumer.",
		}),
		committed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_committed_total",
			Help:      "Number of records committed to the materialized sequence.",
		}),
		stale: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_dropped_total",
			Help:      "Events discarded because their epoch is no longer current.",
		}, []string{"kind"}),
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_finished_total",
			Help:      "Completed loads by outcome.",
		}, []string{"outcome"}),
		patchOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_operations_total",
			Help:      "Structural operations applied by refreshes.",
		}, []string{"op"}),
		sequenceSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequence_size",
			Help:      "Number of records in the materialized sequence.",
		}),
		stashSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stash_size",
			Help:      "Number of recently removed entries kept for lookup.",
		}),
		cacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Artifact cache evictions by result.",
		}, []string{"result"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records dropped by the merge engine for lacking an identity.",
		}),
		queueOverflow: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_queue_overflow_total",
			Help:      "Artifact operations queued beyond the configured backlog.",
		}),
	}
}

// ObserveBatch records a flushed batch of n records.
func (m *Engine) ObserveBatch(n int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.committed.Add(float64(n))
}

// ObserveStale records a dropped stale event of the given kind.
func (m *Engine) ObserveStale(kind string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(kind).Inc()
}

// ObserveLoad records a finished load.
func (m *Engine) ObserveLoad(outcome string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
}

// ObservePatch records the operation counts of an applied patch.
func (m *Engine) ObservePatch(removed, inserted, changed, moved int, reset bool) {
	if m == nil {
		return
	}
	m.patchOps.WithLabelValues("removed").Add(float64(removed))
	m.patchOps.WithLabelValues("inserted").Add(float64(inserted))
	m.patchOps.WithLabelValues("changed").Add(float64(changed))
	m.patchOps.WithLabelValues("moved").Add(float64(moved))
	if reset {
		m.patchOps.WithLabelValues("reset").Inc()
	}
}

// SetSequenceSize updates the materialized sequence gauge.
func (m *Engine) SetSequenceSize(n int) {
	if m == nil {
		return
	}
	m.sequenceSize.Set(float64(n))
}

// SetStashSize updates the stash gauge.
func (m *Engine) SetStashSize(n int) {
	if m == nil {
		return
	}
	m.stashSize.Set(float64(n))
}

// ObserveEviction records an artifact operation result: "evicted",
// "migrated", "missing", "failed" or "coalesced".
func (m *Engine) ObserveEviction(result string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(result).Inc()
}

// ObserveSkipped records n malformed records dropped while merging.
func (m *Engine) ObserveSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}

// ObserveQueueOverflow records an artifact operation queued past the backlog
// limit.
func (m *Engine) ObserveQueueOverflow() {
	if m == nil {
		return
	}
	m.queueOverflow.Inc()
}
