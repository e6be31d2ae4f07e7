package metrics

import (
	"github.com/cashnode/dsproof/module"
)

// NoopCollector discards all observations. It is the default collector of the
// pool and the one used in tests.
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

var _ module.DSProofPoolMetrics = (*NoopCollector)(nil)

func (nc *NoopCollector) ProofAdded()                         {}
func (nc *NoopCollector) ProofRemoved()                       {}
func (nc *NoopCollector) OrphansReaped(count uint)            {}
func (nc *NoopCollector) PoolSize(entries uint, orphans uint) {}
func (nc *NoopCollector) ProofRejected()                      {}
func (nc *NoopCollector) RejectsFilterReset()                 {}
