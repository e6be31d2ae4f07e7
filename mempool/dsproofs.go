package mempool

import (
	"github.com/cashnode/dsproof/model/dsp"
)

// OrphanRef identifies one orphaned proof together with the peer credited
// with first relaying it.
type OrphanRef struct {
	DspId  dsp.DspId
	NodeID dsp.NodeID
}

// ProofRecord pairs a proof with its current orphan flag, as returned by
// snapshot reads.
type ProofRecord struct {
	Proof  dsp.Proof
	Orphan bool
}

// DSProofPool is the in-memory pool of double-spend proofs known to the node.
// It holds both claimed proofs (the spending transaction is locally known) and
// orphans (evidence that arrived before its transaction), bounds orphan memory
// via watermark eviction, and tracks recently rejected proof ids in a rolling
// probabilistic filter so repeated relays of known-bad proofs are cheaply
// suppressed.
//
// All methods are safe for concurrent use. Returned proofs are copies; callers
// may not reach mutable state inside the pool through them.
type DSProofPool interface {

	// Add inserts the proof as a non-orphan. If the proof is already known as
	// an orphan, its orphan status is cleared. Returns true if the proof was
	// newly added, false if it was already present (updated or unchanged).
	// Panics if the proof is empty, which indicates a caller defect.
	Add(proof *dsp.Proof) bool

	// AddOrphan inserts the proof (if absent) and marks it as an orphan,
	// crediting peer if no peer was recorded yet. Calling it on any proof,
	// new or known, always leaves that proof orphaned. May evict older
	// orphans when the orphan count exceeds the high watermark.
	AddOrphan(proof *dsp.Proof, peer dsp.NodeID)

	// FindOrphans returns all orphaned proofs referencing the given outpoint,
	// so that callers can re-evaluate them once the spending transaction is
	// locally known.
	FindOrphans(prevout dsp.OutPoint) []OrphanRef

	// GetAll returns a snapshot of all proofs in the pool, optionally
	// excluding orphans.
	GetAll(includeOrphans bool) []ProofRecord

	// ClaimOrphan clears the orphan flag of the given proof. No-op if the
	// proof is absent or not an orphan.
	ClaimOrphan(id dsp.DspId)

	// Remove deletes the proof with the given id. Returns whether anything
	// was removed.
	Remove(id dsp.DspId) bool

	// Lookup returns a copy of the proof with the given id, if present.
	Lookup(id dsp.DspId) (dsp.Proof, bool)

	// Exists reports whether a proof with the given id is in the pool.
	Exists(id dsp.DspId) bool

	// Size returns the total number of proofs in the pool, orphans included.
	Size() uint

	// NumOrphans returns the number of proofs currently flagged as orphans.
	NumOrphans() uint

	// Clear empties the pool and resets the rejection filter.
	Clear()

	// IsRecentlyRejected probabilistically reports whether the proof id was
	// marked rejected since the last block. False positives are possible,
	// false negatives are not.
	IsRecentlyRejected(id dsp.DspId) bool

	// MarkRejected records that the proof with the given id was judged
	// invalid, suppressing re-validation until the next block.
	MarkRejected(id dsp.DspId)

	// NewBlockFound resets the rejection filter. Proof validity can depend on
	// chain state, so rejections do not carry across blocks.
	NewBlockFound()

	// ReapStaleOrphans removes every orphan older than the retention window
	// and returns the number removed. Scheduling is the caller's concern;
	// typically invoked from a periodic sweep.
	ReapStaleOrphans() uint

	// MaxOrphans returns the orphan capacity that drives watermark eviction.
	MaxOrphans() uint

	// SetMaxOrphans updates the orphan capacity.
	SetMaxOrphans(limit uint)

	// SecondsToKeepOrphans returns the advisory orphan retention window used
	// by ReapStaleOrphans.
	SecondsToKeepOrphans() int

	// SetSecondsToKeepOrphans updates the retention window. Negative values
	// are ignored.
	SetSecondsToKeepOrphans(secs int)
}
