package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cashnode/dsproof/module"
)

const (
	namespaceDSProof = "dsproof"
	subsystemPool    = "pool"
)

// DSProofPoolCollector is the Prometheus implementation of
// module.DSProofPoolMetrics.
type DSProofPoolCollector struct {
	poolSize            prometheus.Gauge
	orphanCount         prometheus.Gauge
	proofsAdded         prometheus.Counter
	proofsRemoved       prometheus.Counter
	orphansReaped       prometheus.Counter
	proofsRejected      prometheus.Counter
	rejectsFilterResets prometheus.Counter
}

var _ module.DSProofPoolMetrics = (*DSProofPoolCollector)(nil)

// NewDSProofPoolCollector creates the collector and registers its metrics
// with the given registerer.
func NewDSProofPoolCollector(registrar prometheus.Registerer) *DSProofPoolCollector {
	c := &DSProofPoolCollector{
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "proofs",
			Help:      "number of double-spend proofs currently in the pool",
		}),
		orphanCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "orphans",
			Help:      "number of pooled proofs currently flagged as orphans",
		}),
		proofsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "proofs_added_total",
			Help:      "total number of proofs inserted into the pool",
		}),
		proofsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "proofs_removed_total",
			Help:      "total number of proofs explicitly removed from the pool",
		}),
		orphansReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "orphans_reaped_total",
			Help:      "total number of orphans evicted by watermark or stale sweeps",
		}),
		proofsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "proofs_rejected_total",
			Help:      "total number of proof ids marked as recently rejected",
		}),
		rejectsFilterResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceDSProof,
			Subsystem: subsystemPool,
			Name:      "rejects_filter_resets_total",
			Help:      "total number of wholesale resets of the rejection filter",
		}),
	}

	registrar.MustRegister(
		c.poolSize,
		c.orphanCount,
		c.proofsAdded,
		c.proofsRemoved,
		c.orphansReaped,
		c.proofsRejected,
		c.rejectsFilterResets,
	)

	return c
}

func (c *DSProofPoolCollector) ProofAdded() {
	c.proofsAdded.Inc()
}

func (c *DSProofPoolCollector) ProofRemoved() {
	c.proofsRemoved.Inc()
}

func (c *DSProofPoolCollector) OrphansReaped(count uint) {
	c.orphansReaped.Add(float64(count))
}

func (c *DSProofPoolCollector) PoolSize(entries uint, orphans uint) {
	c.poolSize.Set(float64(entries))
	c.orphanCount.Set(float64(orphans))
}

func (c *DSProofPoolCollector) ProofRejected() {
	c.proofsRejected.Inc()
}

func (c *DSProofPoolCollector) RejectsFilterReset() {
	c.rejectsFilterResets.Inc()
}
