package stdmap

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cashnode/dsproof/mempool"
	"github.com/cashnode/dsproof/model/dsp"
	"github.com/cashnode/dsproof/module"
	"github.com/cashnode/dsproof/module/metrics"
)

const (
	// DefaultMaxOrphans is the default orphan capacity driving watermark
	// eviction.
	DefaultMaxOrphans = 65536

	// DefaultSecondsToKeepOrphans is the default advisory retention window
	// for the stale-orphan sweep.
	DefaultSecondsToKeepOrphans = 90

	// unsetTimeStamp marks an entry that has never been orphaned.
	unsetTimeStamp int64 = -1
)

// entry wraps one pooled proof with its lifecycle metadata. nodeID and
// timeStamp are first-write-wins: once set they are never overwritten for the
// lifetime of the entry.
type entry struct {
	proof     dsp.Proof
	nodeID    dsp.NodeID
	timeStamp int64
	orphan    bool
}

// DSProofs implements mempool.DSProofPool as a mutex-guarded multi-index
// collection: a primary map by proof id, a non-unique secondary index by the
// salted hash of the referenced outpoint, and a time-ordered orphan index for
// oldest-first eviction. A rolling bloom filter tracks recently rejected
// proof ids between blocks.
//
// Every public method acquires the single lock exactly once; operations that
// reuse other operations' logic (AddOrphan building on Add) go through
// unlocked internal helpers.
type DSProofs struct {
	mu        sync.Mutex
	log       zerolog.Logger
	collector module.DSProofPoolMetrics

	hasher     saltedHasher
	entries    map[dsp.DspId]*entry
	byOutPoint map[uint64]map[dsp.DspId]struct{}
	orphans    orphanIndex
	orphanSeq  uint64
	numOrphans uint

	rejects *rejectsFilter

	maxOrphans           uint
	secondsToKeepOrphans int

	now func() int64
}

var _ mempool.DSProofPool = (*DSProofs)(nil)

// OptionFunc adjusts a DSProofs pool at construction time.
type OptionFunc func(*DSProofs)

// WithMaxOrphans sets the orphan capacity driving watermark eviction.
func WithMaxOrphans(limit uint) OptionFunc {
	return func(d *DSProofs) {
		d.maxOrphans = limit
	}
}

// WithSecondsToKeepOrphans sets the advisory retention window for
// ReapStaleOrphans. Negative values are ignored.
func WithSecondsToKeepOrphans(secs int) OptionFunc {
	return func(d *DSProofs) {
		if secs >= 0 {
			d.secondsToKeepOrphans = secs
		}
	}
}

// WithLogger sets the pool's logger. By default the pool does not log.
func WithLogger(log zerolog.Logger) OptionFunc {
	return func(d *DSProofs) {
		d.log = log.With().Str("component", "dsproof_pool").Logger()
	}
}

// WithCollector sets the metrics collector. By default observations are
// discarded.
func WithCollector(collector module.DSProofPoolMetrics) OptionFunc {
	return func(d *DSProofs) {
		d.collector = collector
	}
}

// WithClock overrides the epoch-seconds clock used to stamp orphans. Intended
// for tests.
func WithClock(now func() int64) OptionFunc {
	return func(d *DSProofs) {
		d.now = now
	}
}

// NewDSProofs creates an empty double-spend proof pool.
func NewDSProofs(opts ...OptionFunc) *DSProofs {
	d := &DSProofs{
		log:                  zerolog.Nop(),
		collector:            metrics.NewNoopCollector(),
		hasher:               newSaltedHasher(),
		entries:              make(map[dsp.DspId]*entry),
		byOutPoint:           make(map[uint64]map[dsp.DspId]struct{}),
		rejects:              newRejectsFilter(),
		maxOrphans:           DefaultMaxOrphans,
		secondsToKeepOrphans: DefaultSecondsToKeepOrphans,
		now: func() int64 {
			return time.Now().Unix()
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add inserts the proof as a non-orphan. If an entry with the same id already
// exists as an orphan, the orphan flag is cleared. Returns true if the proof
// was newly added.
//
// Panics if the proof is empty: callers validate proofs before handing them
// to the pool, so an empty proof can only be a caller defect.
func (d *DSProofs) Add(proof *dsp.Proof) bool {
	if proof.IsEmpty() {
		panic("stdmap: Add called with an empty double-spend proof")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	added := d.add(proof)
	d.collector.PoolSize(uint(len(d.entries)), d.numOrphans)
	return added
}

// add implements Add. The caller must hold d.mu.
func (d *DSProofs) add(proof *dsp.Proof) bool {
	id := proof.ID()

	if e, ok := d.entries[id]; ok {
		if e.orphan {
			// an explicit add means the proof's transaction is known, so it
			// is no longer an orphan
			d.decrementOrphans(1)
			e.orphan = false
		}
		return false
	}

	e := &entry{
		proof:     proof.Copy(),
		nodeID:    dsp.UnknownNodeID,
		timeStamp: unsetTimeStamp,
	}
	d.entries[id] = e

	key := d.hasher.hashOutPoint(proof.Prevout)
	ids, ok := d.byOutPoint[key]
	if !ok {
		ids = make(map[dsp.DspId]struct{})
		d.byOutPoint[key] = ids
	}
	ids[id] = struct{}{}

	d.collector.ProofAdded()
	return true
}

// AddOrphan inserts the proof if absent and unconditionally leaves it marked
// as an orphan, crediting peer if no peer was recorded yet. Routing every
// orphan insertion through the shared counter increment means every call
// triggers the watermark check, which may reap older orphans as a side
// effect. Panics if the proof is empty.
func (d *DSProofs) AddOrphan(proof *dsp.Proof, peer dsp.NodeID) {
	if proof.IsEmpty() {
		panic("stdmap: AddOrphan called with an empty double-spend proof")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.add(proof)

	id := proof.ID()
	e, ok := d.entries[id]
	if !ok {
		// add just guaranteed the entry exists
		d.log.Error().Hex("dspid", id[:]).Msg("entry missing immediately after add")
		panic("stdmap: internal error: entry missing after add")
	}

	if e.nodeID < 0 && peer > -1 {
		e.nodeID = peer
	}
	if e.timeStamp < 0 {
		e.timeStamp = d.now()
	}
	if !e.orphan {
		d.pushOrphanStamp(id, e.timeStamp)
		d.incrementOrphans(1, id)
	}
	// set last so this entry survives the reap the increment may have run
	e.orphan = true

	d.collector.PoolSize(uint(len(d.entries)), d.numOrphans)
}

// FindOrphans returns all orphan entries referencing the given outpoint, so
// they can be re-evaluated once the spending transaction is locally known.
func (d *DSProofs) FindOrphans(prevout dsp.OutPoint) []mempool.OrphanRef {
	d.mu.Lock()
	defer d.mu.Unlock()

	var refs []mempool.OrphanRef
	for id := range d.byOutPoint[d.hasher.hashOutPoint(prevout)] {
		e, ok := d.entries[id]
		if !ok {
			d.log.Error().Hex("dspid", id[:]).Msg("outpoint index references a missing entry")
			panic("stdmap: internal error: inconsistent outpoint index")
		}
		if e.proof.Prevout != prevout {
			// salted key collision between distinct outpoints
			continue
		}
		if e.orphan {
			refs = append(refs, mempool.OrphanRef{DspId: id, NodeID: e.nodeID})
		}
	}
	return refs
}

// GetAll returns a snapshot of the pool, optionally excluding orphans.
func (d *DSProofs) GetAll(includeOrphans bool) []mempool.ProofRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	records := make([]mempool.ProofRecord, 0, len(d.entries))
	for _, e := range d.entries {
		if e.orphan && !includeOrphans {
			continue
		}
		records = append(records, mempool.ProofRecord{
			Proof:  e.proof.Copy(),
			Orphan: e.orphan,
		})
	}
	return records
}

// ClaimOrphan clears the orphan flag of the entry with the given id. No-op if
// the entry is absent or not an orphan.
func (d *DSProofs) ClaimOrphan(id dsp.DspId) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok || !e.orphan {
		return
	}
	d.decrementOrphans(1)
	e.orphan = false
	d.collector.PoolSize(uint(len(d.entries)), d.numOrphans)
}

// Remove deletes the entry with the given id and returns whether anything was
// removed.
func (d *DSProofs) Remove(id dsp.DspId) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return false
	}
	if e.orphan {
		d.decrementOrphans(1)
	}
	d.removeEntry(id, e)
	d.collector.ProofRemoved()
	d.collector.PoolSize(uint(len(d.entries)), d.numOrphans)
	return true
}

// removeEntry deletes id from the primary map and the outpoint index. The
// caller must hold d.mu and have adjusted the orphan counter already.
func (d *DSProofs) removeEntry(id dsp.DspId, e *entry) {
	delete(d.entries, id)

	key := d.hasher.hashOutPoint(e.proof.Prevout)
	ids, ok := d.byOutPoint[key]
	if !ok {
		d.log.Error().Hex("dspid", id[:]).Str("outpoint", e.proof.Prevout.String()).
			Msg("entry missing from outpoint index")
		panic("stdmap: internal error: inconsistent outpoint index")
	}
	if _, ok := ids[id]; !ok {
		d.log.Error().Hex("dspid", id[:]).Str("outpoint", e.proof.Prevout.String()).
			Msg("entry missing from outpoint index bucket")
		panic("stdmap: internal error: inconsistent outpoint index")
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(d.byOutPoint, key)
	}
}

// Lookup returns a copy of the proof with the given id, if present.
func (d *DSProofs) Lookup(id dsp.DspId) (dsp.Proof, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return dsp.Proof{}, false
	}
	return e.proof.Copy(), true
}

// Exists reports whether a proof with the given id is in the pool.
func (d *DSProofs) Exists(id dsp.DspId) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.entries[id]
	return ok
}

// Size returns the total number of pooled proofs, orphans included.
func (d *DSProofs) Size() uint {
	d.mu.Lock()
	defer d.mu.Unlock()

	return uint(len(d.entries))
}

// NumOrphans returns the number of pooled proofs currently flagged as
// orphans.
func (d *DSProofs) NumOrphans() uint {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.numOrphans
}

// Clear empties the pool and resets the rejection filter.
func (d *DSProofs) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = make(map[dsp.DspId]*entry)
	d.byOutPoint = make(map[uint64]map[dsp.DspId]struct{})
	d.orphans = d.orphans[:0]
	d.numOrphans = 0
	d.rejects.reset()

	d.collector.PoolSize(0, 0)
	d.collector.RejectsFilterReset()
}

// IsRecentlyRejected probabilistically reports whether the proof id was
// marked rejected since the last block.
func (d *DSProofs) IsRecentlyRejected(id dsp.DspId) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.hasher.idKey(id)
	return d.rejects.contains(key[:])
}

// MarkRejected records that the proof with the given id was judged invalid.
func (d *DSProofs) MarkRejected(id dsp.DspId) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.hasher.idKey(id)
	d.rejects.add(key[:])
	d.collector.ProofRejected()
}

// NewBlockFound resets the rejection filter wholesale. Proof validity can
// depend on chain state, so rejections must not persist across blocks.
func (d *DSProofs) NewBlockFound() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rejects.reset()
	d.collector.RejectsFilterReset()
}

// MaxOrphans returns the orphan capacity driving watermark eviction.
func (d *DSProofs) MaxOrphans() uint {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.maxOrphans
}

// SetMaxOrphans updates the orphan capacity.
func (d *DSProofs) SetMaxOrphans(limit uint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maxOrphans = limit
}

// SecondsToKeepOrphans returns the advisory retention window used by
// ReapStaleOrphans.
func (d *DSProofs) SecondsToKeepOrphans() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.secondsToKeepOrphans
}

// SetSecondsToKeepOrphans updates the retention window. Negative values are
// ignored.
func (d *DSProofs) SetSecondsToKeepOrphans(secs int) {
	if secs < 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.secondsToKeepOrphans = secs
}

// ReapStaleOrphans removes every orphan that has been waiting at least the
// retention window, oldest first, and returns the number removed. The caller
// schedules this; typically from a periodic sweep.
func (d *DSProofs) ReapStaleOrphans() uint {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now() - int64(d.secondsToKeepOrphans)
	var kept []orphanStamp
	var reaped uint
	for d.orphans.Len() > 0 {
		if d.orphans[0].at > cutoff {
			// heap front is the oldest stamp
			break
		}
		st := heap.Pop(&d.orphans).(orphanStamp)
		e, ok := d.entries[st.id]
		if !ok || e.timeStamp != st.at {
			// stale stamp
			continue
		}
		if !e.orphan {
			kept = append(kept, st)
			continue
		}
		d.decrementOrphans(1)
		d.removeEntry(st.id, e)
		reaped++
	}
	for _, st := range kept {
		heap.Push(&d.orphans, st)
	}

	if reaped > 0 {
		d.collector.OrphansReaped(reaped)
		d.collector.PoolSize(uint(len(d.entries)), d.numOrphans)
		d.log.Debug().Uint("reaped", reaped).Uint("orphans", d.numOrphans).
			Msg("reaped stale orphans")
	}
	return reaped
}

// pushOrphanStamp enqueues a time-ordered eviction stamp for id. The caller
// must hold d.mu.
func (d *DSProofs) pushOrphanStamp(id dsp.DspId, at int64) {
	d.orphanSeq++
	heap.Push(&d.orphans, orphanStamp{at: at, seq: d.orphanSeq, id: id})
}

// incrementOrphans adds n to the orphan counter and, if anything was added,
// runs the watermark check. protected is exempt from the eviction pass the
// check may trigger: it is the entry currently being inserted. The caller
// must hold d.mu.
func (d *DSProofs) incrementOrphans(n uint, protected dsp.DspId) {
	if n == 0 {
		return
	}
	d.numOrphans += n
	d.checkOrphanLimit(protected)
}

// decrementOrphans subtracts n from the orphan counter. Underflow means the
// counter invariant was violated elsewhere; the process must not continue on
// state it cannot trust. The caller must hold d.mu.
func (d *DSProofs) decrementOrphans(n uint) {
	if n == 0 {
		return
	}
	if d.numOrphans < n {
		d.log.Error().Uint("count", d.numOrphans).Uint("decrement", n).
			Msg("orphan counter underflow")
		panic("stdmap: internal error: orphan counter underflow")
	}
	d.numOrphans -= n
}

// checkOrphanLimit reaps oldest orphans once the count exceeds the high
// watermark, stopping at the low watermark. Allowing up to 25% over
// maxOrphans amortizes the scan over many insertions instead of paying for it
// on every orphan add while the pool hovers near capacity. The caller must
// hold d.mu.
func (d *DSProofs) checkOrphanLimit(protected dsp.DspId) {
	highWaterMark := uint(float64(d.maxOrphans) * 1.25)
	lowWaterMark := d.maxOrphans
	if d.numOrphans <= highWaterMark {
		return
	}

	var kept []orphanStamp
	var reaped uint
	for d.numOrphans > lowWaterMark && d.orphans.Len() > 0 {
		st := heap.Pop(&d.orphans).(orphanStamp)
		e, ok := d.entries[st.id]
		if !ok || e.timeStamp != st.at {
			// stale stamp
			continue
		}
		if !e.orphan || st.id == protected {
			kept = append(kept, st)
			continue
		}
		d.removeEntry(st.id, e)
		d.decrementOrphans(1)
		reaped++
	}
	for _, st := range kept {
		heap.Push(&d.orphans, st)
	}

	if reaped > 0 {
		d.collector.OrphansReaped(reaped)
	}
	d.log.Debug().Uint("reaped", reaped).Uint("orphans", d.numOrphans).
		Uint("low", lowWaterMark).Uint("high", highWaterMark).
		Msg("orphan limit check")
}
