package stdmap

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cashnode/dsproof/model/dsp"
	"github.com/cashnode/dsproof/utils/unittest"
)

// testClock returns an epoch-seconds clock that advances by one second per
// call, so every orphan stamp is distinct and ordered by insertion.
func testClock() func() int64 {
	var now int64 = 1000
	return func() int64 {
		now++
		return now
	}
}

// requireOrphanInvariant asserts that the orphan counter equals the number of
// entries currently flagged as orphans.
func requireOrphanInvariant(t *testing.T, pool *DSProofs) {
	var count uint
	for _, rec := range pool.GetAll(true) {
		if rec.Orphan {
			count++
		}
	}
	require.Equal(t, count, pool.NumOrphans())
}

func TestAdd(t *testing.T) {
	t.Parallel()

	t.Run("empty proof panics", func(t *testing.T) {
		pool := NewDSProofs()
		require.Panics(t, func() {
			pool.Add(&dsp.Proof{})
		})
		require.Panics(t, func() {
			pool.AddOrphan(&dsp.Proof{}, 1)
		})
		require.Equal(t, uint(0), pool.Size())
	})

	t.Run("add then lookup", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		require.True(t, pool.Add(proof))

		got, ok := pool.Lookup(proof.ID())
		require.True(t, ok)
		require.Equal(t, *proof, got)
		require.True(t, pool.Exists(proof.ID()))
		require.Equal(t, uint(1), pool.Size())
	})

	t.Run("add twice", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		require.True(t, pool.Add(proof))
		require.False(t, pool.Add(proof))
		require.Equal(t, uint(1), pool.Size())
	})

	t.Run("add clears orphan status", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, 7)
		require.Equal(t, uint(1), pool.NumOrphans())

		require.False(t, pool.Add(proof))
		require.Equal(t, uint(0), pool.NumOrphans())
		require.True(t, pool.Exists(proof.ID()))
		requireOrphanInvariant(t, pool)
	})

	t.Run("lookup of absent id", func(t *testing.T) {
		pool := NewDSProofs()
		_, ok := pool.Lookup(unittest.DspIdFixture())
		require.False(t, ok)
	})
}

func TestAddOrphan(t *testing.T) {
	t.Parallel()

	t.Run("new proof becomes orphan", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, 5)

		require.True(t, pool.Exists(proof.ID()))
		require.Equal(t, uint(1), pool.NumOrphans())

		refs := pool.FindOrphans(proof.Prevout)
		require.Len(t, refs, 1)
		require.Equal(t, proof.ID(), refs[0].DspId)
		require.Equal(t, dsp.NodeID(5), refs[0].NodeID)
	})

	t.Run("first write wins on peer", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, 5)
		pool.AddOrphan(proof, 9)

		refs := pool.FindOrphans(proof.Prevout)
		require.Len(t, refs, 1)
		require.Equal(t, dsp.NodeID(5), refs[0].NodeID)
		require.Equal(t, uint(1), pool.NumOrphans())
	})

	t.Run("unknown peer does not claim the slot", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, -1)
		pool.AddOrphan(proof, 4)

		refs := pool.FindOrphans(proof.Prevout)
		require.Len(t, refs, 1)
		require.Equal(t, dsp.NodeID(4), refs[0].NodeID)
	})

	t.Run("re-orphan a known proof", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, 1)
		require.False(t, pool.Add(proof))
		require.Equal(t, uint(0), pool.NumOrphans())

		pool.AddOrphan(proof, 2)
		require.Equal(t, uint(1), pool.NumOrphans())

		// peer was recorded by the first orphan add
		refs := pool.FindOrphans(proof.Prevout)
		require.Len(t, refs, 1)
		require.Equal(t, dsp.NodeID(1), refs[0].NodeID)
		requireOrphanInvariant(t, pool)
	})
}

func TestClaimOrphan(t *testing.T) {
	t.Parallel()

	t.Run("claim clears orphan flag", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, 3)
		pool.ClaimOrphan(proof.ID())

		require.Equal(t, uint(0), pool.NumOrphans())
		require.True(t, pool.Exists(proof.ID()))
		require.Empty(t, pool.FindOrphans(proof.Prevout))
		requireOrphanInvariant(t, pool)
	})

	t.Run("claim of absent id is a no-op", func(t *testing.T) {
		pool := NewDSProofs()
		pool.ClaimOrphan(unittest.DspIdFixture())
		require.Equal(t, uint(0), pool.NumOrphans())
	})

	t.Run("claim of non-orphan is a no-op", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		require.True(t, pool.Add(proof))
		pool.ClaimOrphan(proof.ID())

		require.Equal(t, uint(0), pool.NumOrphans())
		require.True(t, pool.Exists(proof.ID()))
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	t.Run("remove non-orphan", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		require.True(t, pool.Add(proof))
		require.True(t, pool.Remove(proof.ID()))
		require.False(t, pool.Exists(proof.ID()))
		require.Equal(t, uint(0), pool.Size())
	})

	t.Run("remove orphan adjusts counter", func(t *testing.T) {
		pool := NewDSProofs()
		proof := unittest.ProofFixture()

		pool.AddOrphan(proof, 2)
		require.True(t, pool.Remove(proof.ID()))
		require.Equal(t, uint(0), pool.NumOrphans())
		requireOrphanInvariant(t, pool)
	})

	t.Run("remove absent id", func(t *testing.T) {
		pool := NewDSProofs()
		require.False(t, pool.Remove(unittest.DspIdFixture()))
	})
}

func TestFindOrphans(t *testing.T) {
	t.Parallel()

	pool := NewDSProofs()
	prevout := unittest.OutPointFixture()

	orphan1 := unittest.ProofFixture(unittest.WithPrevout(prevout))
	orphan2 := unittest.ProofFixture(unittest.WithPrevout(prevout))
	claimed := unittest.ProofFixture(unittest.WithPrevout(prevout))
	unrelated := unittest.ProofFixture()

	pool.AddOrphan(orphan1, 1)
	pool.AddOrphan(orphan2, 2)
	require.True(t, pool.Add(claimed))
	pool.AddOrphan(unrelated, 3)

	refs := pool.FindOrphans(prevout)
	require.Len(t, refs, 2)
	ids := map[dsp.DspId]dsp.NodeID{}
	for _, ref := range refs {
		ids[ref.DspId] = ref.NodeID
	}
	require.Equal(t, map[dsp.DspId]dsp.NodeID{
		orphan1.ID(): 1,
		orphan2.ID(): 2,
	}, ids)

	require.Empty(t, pool.FindOrphans(unittest.OutPointFixture()))
}

func TestGetAll(t *testing.T) {
	t.Parallel()

	pool := NewDSProofs()
	claimed := unittest.ProofFixture()
	orphan := unittest.ProofFixture()

	require.True(t, pool.Add(claimed))
	pool.AddOrphan(orphan, 1)

	all := pool.GetAll(true)
	require.Len(t, all, 2)

	nonOrphans := pool.GetAll(false)
	require.Len(t, nonOrphans, 1)
	require.Equal(t, *claimed, nonOrphans[0].Proof)
	require.False(t, nonOrphans[0].Orphan)
}

func TestOrphanEviction(t *testing.T) {
	t.Parallel()

	t.Run("watermark reap evicts oldest down to capacity", func(t *testing.T) {
		pool := NewDSProofs(
			WithMaxOrphans(10),
			WithClock(testClock()),
			WithLogger(unittest.Logger()),
		)
		proofs := unittest.ProofFixtures(13)

		// high watermark is floor(10*1.25) = 12; no eviction up to there
		for i := 0; i < 12; i++ {
			pool.AddOrphan(proofs[i], dsp.NodeID(i))
			requireOrphanInvariant(t, pool)
		}
		require.Equal(t, uint(12), pool.NumOrphans())

		// the 13th orphan exceeds the high watermark and triggers a reap
		// down to the low watermark
		pool.AddOrphan(proofs[12], 12)
		require.Equal(t, uint(10), pool.NumOrphans())
		require.Equal(t, uint(10), pool.Size())

		for i := 0; i < 3; i++ {
			require.False(t, pool.Exists(proofs[i].ID()), "oldest orphan %d should be evicted", i)
		}
		for i := 3; i < 13; i++ {
			require.True(t, pool.Exists(proofs[i].ID()), "orphan %d should survive", i)
		}
		requireOrphanInvariant(t, pool)
	})

	t.Run("protected entry survives even as the oldest", func(t *testing.T) {
		pool := NewDSProofs(WithMaxOrphans(4), WithClock(testClock()))
		proofs := unittest.ProofFixtures(6)

		// fill to the high watermark (floor(4*1.25) = 5)
		for i := 0; i < 5; i++ {
			pool.AddOrphan(proofs[i], dsp.NodeID(i))
		}
		require.Equal(t, uint(5), pool.NumOrphans())

		// claim the oldest, then add one more orphan
		pool.ClaimOrphan(proofs[0].ID())
		pool.AddOrphan(proofs[5], 5)
		require.Equal(t, uint(5), pool.NumOrphans())

		// re-orphaning the oldest pushes past the high watermark; it keeps
		// its original timestamp but must not be reaped by its own insertion
		pool.AddOrphan(proofs[0], 0)
		require.Equal(t, uint(4), pool.NumOrphans())

		require.True(t, pool.Exists(proofs[0].ID()))
		require.Len(t, pool.FindOrphans(proofs[0].Prevout), 1)
		require.False(t, pool.Exists(proofs[1].ID()))
		require.False(t, pool.Exists(proofs[2].ID()))
		require.True(t, pool.Exists(proofs[3].ID()))
		require.True(t, pool.Exists(proofs[4].ID()))
		require.True(t, pool.Exists(proofs[5].ID()))
		requireOrphanInvariant(t, pool)
	})
}

func TestReapStaleOrphans(t *testing.T) {
	t.Parallel()

	t.Run("reaps only orphans past the window", func(t *testing.T) {
		now := int64(1000)
		pool := NewDSProofs(
			WithClock(func() int64 { return now }),
			WithSecondsToKeepOrphans(60),
		)

		old := unittest.ProofFixture()
		pool.AddOrphan(old, 1)

		now = 1030
		recent := unittest.ProofFixture()
		pool.AddOrphan(recent, 2)

		claimed := unittest.ProofFixture()
		require.True(t, pool.Add(claimed))

		now = 1061
		require.Equal(t, uint(1), pool.ReapStaleOrphans())

		require.False(t, pool.Exists(old.ID()))
		require.True(t, pool.Exists(recent.ID()))
		require.True(t, pool.Exists(claimed.ID()))
		require.Equal(t, uint(1), pool.NumOrphans())
		requireOrphanInvariant(t, pool)
	})

	t.Run("claimed orphan is not swept but re-orphaning revives its age", func(t *testing.T) {
		now := int64(1000)
		pool := NewDSProofs(
			WithClock(func() int64 { return now }),
			WithSecondsToKeepOrphans(60),
		)

		proof := unittest.ProofFixture()
		pool.AddOrphan(proof, 1)
		pool.ClaimOrphan(proof.ID())

		now = 1100
		require.Equal(t, uint(0), pool.ReapStaleOrphans())
		require.True(t, pool.Exists(proof.ID()))

		// the original first-write-wins timestamp makes the re-orphaned
		// entry immediately stale
		pool.AddOrphan(proof, 1)
		require.Equal(t, uint(1), pool.ReapStaleOrphans())
		require.False(t, pool.Exists(proof.ID()))
		requireOrphanInvariant(t, pool)
	})
}

func TestRejects(t *testing.T) {
	t.Parallel()

	t.Run("marked ids are reported rejected", func(t *testing.T) {
		pool := NewDSProofs()
		id := unittest.DspIdFixture()

		require.False(t, pool.IsRecentlyRejected(id))
		pool.MarkRejected(id)
		require.True(t, pool.IsRecentlyRejected(id))
	})

	t.Run("new block resets the filter", func(t *testing.T) {
		pool := NewDSProofs()
		ids := make([]dsp.DspId, 50)
		for i := range ids {
			ids[i] = unittest.DspIdFixture()
			pool.MarkRejected(ids[i])
		}

		pool.NewBlockFound()
		for _, id := range ids {
			require.False(t, pool.IsRecentlyRejected(id))
		}
	})
}

func TestClear(t *testing.T) {
	t.Parallel()

	pool := NewDSProofs()
	proofs := unittest.ProofFixtures(4)
	require.True(t, pool.Add(proofs[0]))
	pool.AddOrphan(proofs[1], 1)
	pool.AddOrphan(proofs[2], 2)
	pool.MarkRejected(proofs[3].ID())

	pool.Clear()

	require.Equal(t, uint(0), pool.Size())
	require.Equal(t, uint(0), pool.NumOrphans())
	require.False(t, pool.Exists(proofs[0].ID()))
	require.False(t, pool.IsRecentlyRejected(proofs[3].ID()))

	// the pool stays usable after a clear
	require.True(t, pool.Add(proofs[0]))
	pool.AddOrphan(proofs[1], 1)
	require.Equal(t, uint(1), pool.NumOrphans())
	requireOrphanInvariant(t, pool)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	pool := NewDSProofs()
	require.Equal(t, uint(DefaultMaxOrphans), pool.MaxOrphans())
	require.Equal(t, DefaultSecondsToKeepOrphans, pool.SecondsToKeepOrphans())

	pool.SetMaxOrphans(100)
	require.Equal(t, uint(100), pool.MaxOrphans())

	pool.SetSecondsToKeepOrphans(30)
	require.Equal(t, 30, pool.SecondsToKeepOrphans())

	pool.SetSecondsToKeepOrphans(-1)
	require.Equal(t, 30, pool.SecondsToKeepOrphans())
}

// TestOrphanCounterProperty runs a pseudo-random operation sequence over a
// small id universe and asserts the counter invariant after every mutation,
// with eviction permanently in play.
func TestOrphanCounterProperty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	pool := NewDSProofs(
		WithMaxOrphans(20),
		WithClock(testClock()),
		WithLogger(unittest.Logger()),
	)
	universe := unittest.ProofFixtures(30)

	for i := 0; i < 500; i++ {
		proof := universe[rng.Intn(len(universe))]
		switch rng.Intn(4) {
		case 0:
			pool.Add(proof)
		case 1:
			pool.AddOrphan(proof, dsp.NodeID(rng.Intn(5)-1))
		case 2:
			pool.ClaimOrphan(proof.ID())
		case 3:
			pool.Remove(proof.ID())
		}
		requireOrphanInvariant(t, pool)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	const workers = 8
	const perWorker = 50

	pool := NewDSProofs(WithMaxOrphans(1000))
	proofs := unittest.ProofFixtures(workers * perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				proof := proofs[w*perWorker+i]
				switch i % 4 {
				case 0:
					pool.Add(proof)
				case 1:
					pool.AddOrphan(proof, dsp.NodeID(w))
				case 2:
					pool.AddOrphan(proof, dsp.NodeID(w))
					pool.ClaimOrphan(proof.ID())
				case 3:
					pool.Add(proof)
					pool.Remove(proof.ID())
				}
				pool.Exists(proof.ID())
				pool.FindOrphans(proof.Prevout)
				pool.GetAll(true)
			}
		}(w)
	}
	wg.Wait()

	requireOrphanInvariant(t, pool)
}
