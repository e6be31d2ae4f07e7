package stdmap

import (
	"github.com/cashnode/dsproof/model/dsp"
)

// orphanStamp records when an entry was first marked as an orphan. The
// sequence number breaks ties between stamps from the same clock second, so
// eviction order within a second is insertion order.
type orphanStamp struct {
	at  int64
	seq uint64
	id  dsp.DspId
}

// orphanIndex is a min-heap of orphan stamps, oldest first, used by the
// watermark eviction and the stale sweep. Stamps are invalidated lazily:
// scans verify each popped stamp against the primary entries map and discard
// stamps whose entry is gone or was re-stamped, and re-queue stamps whose
// entry is currently not an orphan (it may be orphaned again later, keeping
// its original first-write-wins timestamp).
//
// Implements container/heap.Interface.
type orphanIndex []orphanStamp

func (x orphanIndex) Len() int { return len(x) }

func (x orphanIndex) Less(i, j int) bool {
	if x[i].at != x[j].at {
		return x[i].at < x[j].at
	}
	return x[i].seq < x[j].seq
}

func (x orphanIndex) Swap(i, j int) {
	x[i], x[j] = x[j], x[i]
}

func (x *orphanIndex) Push(v any) {
	*x = append(*x, v.(orphanStamp))
}

func (x *orphanIndex) Pop() any {
	old := *x
	n := len(old)
	v := old[n-1]
	*x = old[:n-1]
	return v
}
