package unittest

import (
	crand "crypto/rand"
	"fmt"

	"github.com/cashnode/dsproof/model/dsp"
)

func read(b []byte) {
	if _, err := crand.Read(b); err != nil {
		panic(fmt.Sprintf("unittest: could not read random bytes: %v", err))
	}
}

// TxIDFixture returns a random transaction id.
func TxIDFixture() dsp.TxID {
	var txid dsp.TxID
	read(txid[:])
	return txid
}

// DspIdFixture returns a random proof identifier. Note that it does not
// correspond to any proof; use ProofFixture().ID() for that.
func DspIdFixture() dsp.DspId {
	var id dsp.DspId
	read(id[:])
	return id
}

// Hash256Fixture returns a random 256-bit commitment hash.
func Hash256Fixture() dsp.Hash256 {
	var h dsp.Hash256
	read(h[:])
	return h
}

// OutPointFixture returns a random outpoint.
func OutPointFixture() dsp.OutPoint {
	return dsp.OutPoint{
		TxID: TxIDFixture(),
		Vout: 1,
	}
}

// SpenderFixture returns a spender with random commitments and one random
// signature push.
func SpenderFixture() dsp.Spender {
	sig := make([]byte, 71)
	read(sig)
	return dsp.Spender{
		TxVersion:       2,
		OutSequence:     0xffffffff,
		LockTime:        0,
		HashPrevOutputs: Hash256Fixture(),
		HashSequence:    Hash256Fixture(),
		HashOutputs:     Hash256Fixture(),
		PushData:        [][]byte{sig},
	}
}

// ProofFixture returns a structurally valid random proof, with optional
// mutators applied before it is returned.
func ProofFixture(opts ...func(*dsp.Proof)) *dsp.Proof {
	proof := &dsp.Proof{
		Prevout:  OutPointFixture(),
		Spender1: SpenderFixture(),
		Spender2: SpenderFixture(),
	}
	for _, opt := range opts {
		opt(proof)
	}
	return proof
}

// WithPrevout pins the proof's referenced outpoint.
func WithPrevout(prevout dsp.OutPoint) func(*dsp.Proof) {
	return func(proof *dsp.Proof) {
		proof.Prevout = prevout
	}
}

// ProofFixtures returns n distinct random proofs.
func ProofFixtures(n int) []*dsp.Proof {
	proofs := make([]*dsp.Proof, 0, n)
	for i := 0; i < n; i++ {
		proofs = append(proofs, ProofFixture())
	}
	return proofs
}
