package stdmap

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/cashnode/dsproof/model/dsp"
)

// saltedHasher computes short keyed hashes over proof identifiers and
// outpoints. The key is drawn once per pool instance, so index keys and
// rejection-filter entries are deterministic within a process run but
// unpredictable to peers, which defends the hash-based indices against
// flooding with colliding inputs.
type saltedHasher struct {
	key [16]byte
}

func newSaltedHasher() saltedHasher {
	var h saltedHasher
	if _, err := rand.Read(h.key[:]); err != nil {
		panic(fmt.Sprintf("stdmap: could not seed salted hasher: %v", err))
	}
	return h
}

func (h saltedHasher) sum64(parts ...[]byte) uint64 {
	d, err := blake2b.New(8, h.key[:])
	if err != nil {
		// the key length is fixed and valid
		panic(fmt.Sprintf("stdmap: could not construct keyed hash: %v", err))
	}
	for _, part := range parts {
		_, _ = d.Write(part)
	}
	return binary.LittleEndian.Uint64(d.Sum(nil))
}

// hashOutPoint returns the secondary-index key for an outpoint.
func (h saltedHasher) hashOutPoint(out dsp.OutPoint) uint64 {
	var vout [4]byte
	binary.LittleEndian.PutUint32(vout[:], out.Vout)
	return h.sum64(out.TxID[:], vout[:])
}

// idKey returns the rejection-filter key for a proof identifier.
func (h saltedHasher) idKey(id dsp.DspId) [8]byte {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], h.sum64(id[:]))
	return key
}
