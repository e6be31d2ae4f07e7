package module

// DSProofPoolMetrics observes activity of the double-spend proof pool.
// Implementations must be non-blocking; they are invoked while the pool's
// lock is held.
type DSProofPoolMetrics interface {
	// ProofAdded is called when a proof is newly inserted into the pool.
	ProofAdded()

	// ProofRemoved is called when a proof is explicitly removed.
	ProofRemoved()

	// OrphansReaped is called with the number of orphans evicted by a
	// watermark pass or a stale sweep.
	OrphansReaped(count uint)

	// PoolSize reports the pool's entry and orphan counts after a mutation.
	PoolSize(entries uint, orphans uint)

	// ProofRejected is called when a proof id is marked as rejected.
	ProofRejected()

	// RejectsFilterReset is called when the rejection filter is reset
	// wholesale (new block, or pool clear).
	RejectsFilterReset()
}
