package stdmap

import (
	"fmt"

	"github.com/ipfs/bbloom"
)

const (
	// rejectsFilterCapacity is the number of rejected proof ids the filter is
	// sized for between two blocks.
	rejectsFilterCapacity = 120000

	// rejectsFalsePositiveRate keeps spurious "already rejected" answers rare
	// enough that the occasional redundant re-validation does not matter.
	rejectsFalsePositiveRate = 0.000001
)

// rejectsFilter is the rolling membership set of proof ids already judged
// invalid. False positives are tolerated, false negatives cannot occur. It is
// reset wholesale on every new block; rejection context is block-scoped
// because proof validity can depend on chain state.
//
// Not safe for concurrent use on its own; the pool's lock guards it.
type rejectsFilter struct {
	bloom *bbloom.Bloom
}

func newRejectsFilter() *rejectsFilter {
	return &rejectsFilter{bloom: mustBloom()}
}

func mustBloom() *bbloom.Bloom {
	b, err := bbloom.New(float64(rejectsFilterCapacity), rejectsFalsePositiveRate)
	if err != nil {
		// the parameters are compile-time constants
		panic(fmt.Sprintf("stdmap: could not build rejects filter: %v", err))
	}
	return b
}

func (f *rejectsFilter) add(key []byte) {
	f.bloom.Add(key)
}

func (f *rejectsFilter) contains(key []byte) bool {
	return f.bloom.Has(key)
}

// reset drops all membership by swapping in a fresh filter.
func (f *rejectsFilter) reset() {
	f.bloom = mustBloom()
}
