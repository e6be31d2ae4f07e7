package dsp

import (
	"fmt"
)

// OutPoint references a single transaction output: the output spent twice by
// the two claimants of a double-spend proof.
type OutPoint struct {
	TxID TxID
	Vout uint32
}

// IsZero reports whether the outpoint is the zero value, i.e. references
// nothing.
func (o OutPoint) IsZero() bool {
	return o == OutPoint{}
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}
