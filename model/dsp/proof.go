package dsp

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Spender describes one of the two conflicting claimants of a spent output:
// the subset of its transaction needed to prove the double spend, carrying the
// BIP143-style sighash commitments and the signature push data.
type Spender struct {
	TxVersion       uint32
	OutSequence     uint32
	LockTime        uint32
	HashPrevOutputs Hash256
	HashSequence    Hash256
	HashOutputs     Hash256
	PushData        [][]byte
}

func (s Spender) copy() Spender {
	cpy := s
	cpy.PushData = make([][]byte, len(s.PushData))
	for i, pd := range s.PushData {
		cpy.PushData[i] = append([]byte(nil), pd...)
	}
	return cpy
}

func (s *Spender) serializeInto(buf *bytes.Buffer) {
	writeUint32(buf, s.TxVersion)
	writeUint32(buf, s.OutSequence)
	writeUint32(buf, s.LockTime)
	buf.Write(s.HashPrevOutputs[:])
	buf.Write(s.HashSequence[:])
	buf.Write(s.HashOutputs[:])
	writeCompactSize(buf, uint64(len(s.PushData)))
	for _, pd := range s.PushData {
		writeCompactSize(buf, uint64(len(pd)))
		buf.Write(pd)
	}
}

// Proof is evidence that two transactions attempt to spend Prevout. It is
// constructed and validated elsewhere; the pool treats it as an immutable
// value identified by ID().
type Proof struct {
	Prevout  OutPoint
	Spender1 Spender
	Spender2 Spender
}

// IsEmpty reports whether the proof is structurally empty. Handing an empty
// proof to the pool is a caller defect.
func (p *Proof) IsEmpty() bool {
	return p == nil || p.Prevout.IsZero() ||
		len(p.Spender1.PushData) == 0 || len(p.Spender2.PushData) == 0
}

// ID returns the proof identifier: the double-SHA256 of the canonical
// serialization.
func (p *Proof) ID() DspId {
	first := sha256.Sum256(p.Serialize())
	return DspId(sha256.Sum256(first[:]))
}

// Serialize returns the canonical byte encoding of the proof: little-endian
// integers, compact-size-prefixed byte vectors.
func (p *Proof) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(p.Prevout.TxID[:])
	writeUint32(&buf, p.Prevout.Vout)
	p.Spender1.serializeInto(&buf)
	p.Spender2.serializeInto(&buf)
	return buf.Bytes()
}

// Copy returns a deep copy of the proof, sharing no mutable state with the
// receiver.
func (p *Proof) Copy() Proof {
	return Proof{
		Prevout:  p.Prevout,
		Spender1: p.Spender1.copy(),
		Spender2: p.Spender2.copy(),
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeCompactSize(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		writeUint32(buf, uint32(n))
	default:
		buf.WriteByte(0xff)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], n)
		buf.Write(b[:])
	}
}
