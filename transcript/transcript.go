// Package transcript implements the Fiat-Shamir transcript driving all
// challenge derivation in the proof system.
//
// A Transcript is process-local mutable state scoped to a single proving or
// verifying session. Challenges are derived deterministically from everything
// absorbed so far, so prover and verifier reproduce the same challenge
// sequence by absorbing the same messages in the same order.
package transcript

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Transcript accumulates prover messages and produces verifier challenges.
// The zero value is not usable; use New.
type Transcript struct {
	h     hash.Hash
	state []byte
}

// New returns a transcript seeded with the given protocol label, hashing with
// SHA-256.
func New(label string) *Transcript {
	return NewWithHash(sha256.New(), label)
}

// NewWithHash returns a transcript using a caller-supplied hash function.
func NewWithHash(h hash.Hash, label string) *Transcript {
	t := &Transcript{h: h}
	t.state = make([]byte, 0, h.Size())
	t.absorb([]byte(label))
	return t
}

// state ← H(state ∥ data)
func (t *Transcript) absorb(data []byte) {
	t.h.Reset()
	t.h.Write(t.state)
	t.h.Write(data)
	t.state = t.h.Sum(t.state[:0])
}

// Append absorbs raw bytes under a domain-separation label.
func (t *Transcript) Append(label string, data []byte) {
	var lenPrefix [8]byte
	binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(data)))
	t.absorb([]byte(label))
	t.absorb(lenPrefix[:])
	t.absorb(data)
}

// AppendScalar absorbs a field element.
func (t *Transcript) AppendScalar(label string, e *fr.Element) {
	t.Append(label, e.Marshal())
}

// AppendScalars absorbs a slice of field elements.
func (t *Transcript) AppendScalars(label string, es []fr.Element) {
	for i := range es {
		t.AppendScalar(label, &es[i])
	}
}

// ChallengeScalar derives the next challenge as a field element.
func (t *Transcript) ChallengeScalar(label string) fr.Element {
	t.absorb([]byte(label))
	var r fr.Element
	r.SetBytes(t.state)
	return r
}

// ChallengeVector derives n challenges under a single label.
func (t *Transcript) ChallengeVector(label string, n int) []fr.Element {
	res := make([]fr.Element, n)
	for i := range res {
		res[i] = t.ChallengeScalar(label)
	}
	return res
}
