package dsp

import (
	"encoding/hex"
)

// DspId uniquely identifies a double-spend proof. It is the double-SHA256 of
// the proof's canonical serialization.
type DspId [32]byte

// ZeroDspId is the zero value of DspId, used as a sentinel where no proof is
// referenced (for example as the protected identifier of an eviction pass
// triggered outside an insertion).
var ZeroDspId = DspId{}

func (id DspId) String() string {
	return hex.EncodeToString(id[:])
}

// TxID identifies a transaction.
type TxID [32]byte

func (t TxID) String() string {
	return hex.EncodeToString(t[:])
}

// Hash256 is a 256-bit commitment hash carried inside a proof (BIP143-style
// prevouts/sequence/outputs commitments of a spender).
type Hash256 [32]byte

// NodeID identifies the peer credited with first relaying a proof to us.
// Negative values mean the peer is unknown.
type NodeID int64

// UnknownNodeID is the sentinel for "no peer recorded yet".
const UnknownNodeID NodeID = -1
